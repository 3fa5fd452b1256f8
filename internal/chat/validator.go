package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max message size
	MaxTextChars    = 2000 // max character count
)

var (
	ErrEmptyMessage   = errors.New("chat: message text is empty")
	ErrMessageTooLong = errors.New("chat: message too long")
	ErrInvalidUTF8    = errors.New("chat: message contains invalid UTF-8")
)

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrMessageTooLong, MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrMessageTooLong, MaxTextChars)
	}
	return nil
}

// validationNotice is the text sent to the client for a rejected message.
func validationNotice(err error) string {
	switch {
	case errors.Is(err, ErrMessageTooLong):
		return fmt.Sprintf("Message is too long (max %d characters)", MaxTextChars)
	case errors.Is(err, ErrInvalidUTF8):
		return "Message contains invalid characters"
	default:
		return "Message cannot be empty"
	}
}
