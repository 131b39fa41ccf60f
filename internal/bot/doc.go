// Package bot — worker'ы бота водяных знаков.
//
// Каждая функция пакета возвращает worker.Spec: имя, ограничения,
// таблицу capability и фабрику. Пайплайны собираются из этих Spec
// в internal/pipeline.
//
// # Раскладка хранилищ
//
//	userinfo-files    <id-of-did>                      {"did", "app_password"}
//	watermarks        images/<id>.<ext>                изображение водяного знака
//	                  metadatas/<id>.json              метаданные изображения
//	original-imgs     <cid>/<id>/post.json             запись исходного поста
//	                  <cid>/<id>/<n>.<ext>             исходные изображения
//	watermarked-imgs  <cid>/<id>/<n>.png               результат
//	                  <cid>/<id>/repost.json           ссылка на опубликованный пост
//
// App password пользователя хранится только в зашифрованном виде
// (secrets.Sealer с ключом fernet_key).
package bot
