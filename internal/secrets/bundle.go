// Package secrets — общий набор секретов бота и их шифрование.
//
// Bundle читается провайдером один раз на вызов worker'а и никогда не
// попадает в логи: String, GoString и LogValue маскируют все поля.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidBundle — набор секретов не содержит обязательных полей.
var ErrInvalidBundle = errors.New("invalid secret bundle")

const redacted = "[REDACTED]"

// Bundle — набор секретов бота.
type Bundle struct {
	// FernetKey — URL-safe base64 ключ длиной 32 байта для шифрования
	// app password'ов пользователей.
	FernetKey string `json:"fernet_key"`

	// BotUserID — handle бота в Bluesky.
	BotUserID string `json:"bot_userid"`

	// BotAppPassword — app password бота.
	BotAppPassword string `json:"bot_app_password"`

	// IgnoreListURI — ссылка на список игнорируемых пользователей.
	IgnoreListURI string `json:"ignore_list_uri"`

	// WhiteListURI — ссылка на белый список. Непустой список
	// переопределяет follows/followers.
	WhiteListURI string `json:"white_list_uri"`
}

// ParseBundle разбирает JSON документ секрета и проверяет обязательные поля.
func ParseBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Validate проверяет обязательные поля.
func (b Bundle) Validate() error {
	var missing []string
	if b.FernetKey == "" {
		missing = append(missing, "fernet_key")
	}
	if b.BotUserID == "" {
		missing = append(missing, "bot_userid")
	}
	if b.BotAppPassword == "" {
		missing = append(missing, "bot_app_password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrInvalidBundle, missing)
	}
	return nil
}

// String маскирует все поля.
func (b Bundle) String() string {
	return "secrets.Bundle" + redacted
}

// GoString маскирует все поля для %#v.
func (b Bundle) GoString() string {
	return b.String()
}

// LogValue маскирует все поля для slog.
func (b Bundle) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
