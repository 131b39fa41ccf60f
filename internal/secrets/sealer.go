package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	// ErrInvalidKey — ключ не является base64 строкой длиной 32 байта.
	ErrInvalidKey = errors.New("invalid sealing key")

	// ErrCannotOpen — токен повреждён или зашифрован другим ключом.
	ErrCannotOpen = errors.New("cannot open sealed value")
)

// Sealer шифрует короткие секреты пользователей (app password'ы),
// хранимые в userinfo bucket'е.
//
// Формат токена: base64url(nonce || secretbox).
type Sealer struct {
	key  [32]byte
	rand io.Reader
}

// NewSealer создаёт Sealer из ключа fernet_key.
func NewSealer(encodedKey string) (*Sealer, error) {
	raw, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	s := &Sealer{rand: rand.Reader}
	copy(s.key[:], raw)
	return s, nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(encoded)
		if err == nil && len(raw) == 32 {
			return raw, nil
		}
	}
	return nil, ErrInvalidKey
}

// Seal шифрует plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.URLEncoding.EncodeToString(box), nil
}

// Open расшифровывает токен, созданный Seal.
func (s *Sealer) Open(token string) (string, error) {
	box, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrCannotOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrCannotOpen
	}
	return string(plain), nil
}
