package bot

import "errors"

var (
	// ErrInvalidDID — DID не распознан или не поддерживается.
	ErrInvalidDID = errors.New("invalid did")

	// ErrInvalidInput — вход worker'а не соответствует ожидаемой форме.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAppPasswordNotFound — в разговоре нет app password от собеседника.
	ErrAppPasswordNotFound = errors.New("app password not found")

	// ErrNoPartner — в разговоре нет участника, кроме бота.
	ErrNoPartner = errors.New("conversation has no partner")

	// ErrNoImages — пост не содержит изображений.
	ErrNoImages = errors.New("post has no images")

	// ErrNoWatermark — у пользователя нет изображения водяного знака.
	ErrNoWatermark = errors.New("watermark image not found")

	// ErrNotRegistered — пользователь не прислал app password.
	ErrNotRegistered = errors.New("user is not registered")

	// ErrDIDMismatch — файл пользователя принадлежит другому DID.
	ErrDIDMismatch = errors.New("user file did mismatch")
)
