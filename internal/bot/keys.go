package bot

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var idOfDIDPattern = regexp.MustCompile(`^did:[a-z]+:([a-zA-Z0-9]+)$`)

// IDOfDID возвращает идентификатор DID: did:plc:abcdefg → abcdefg.
func IDOfDID(did string) (string, error) {
	m := idOfDIDPattern.FindStringSubmatch(did)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDID, did)
	}
	return m[1], nil
}

// UserInfoKey — ключ файла пользователя в userinfo-files.
func UserInfoKey(id string) string { return id }

// WatermarkImageKey — ключ изображения водяного знака.
func WatermarkImageKey(id, mimeType string) string {
	return path.Join("images", id) + Extension(mimeType)
}

// WatermarkMetadataKey — ключ метаданных водяного знака.
func WatermarkMetadataKey(id string) string {
	return path.Join("metadatas", id) + ".json"
}

// OriginalPostKey — ключ записи исходного поста.
func OriginalPostKey(cid, id string) string {
	return path.Join(cid, id, "post.json")
}

// OriginalImageKey — ключ n-го исходного изображения поста.
func OriginalImageKey(cid, id string, n int, mimeType string) string {
	return path.Join(cid, id, strconv.Itoa(n)) + Extension(mimeType)
}

// WatermarkedKey — ключ результата для исходного изображения.
func WatermarkedKey(originalKey string) string {
	return strings.TrimSuffix(originalKey, path.Ext(originalKey)) + ".png"
}

// RepostMarkerKey — ключ ссылки на опубликованный результат.
func RepostMarkerKey(cid, id string) string {
	return path.Join(cid, id, "repost.json")
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Extension возвращает расширение файла для MIME-типа.
func Extension(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
