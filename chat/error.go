package chat

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("CHAT")

var (
	CodeSessionNotFound   = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Chat session not found")
	CodeSessionExpired    = ErrRegistry.Register("SESSION_EXPIRED", errx.TypeBusiness, http.StatusGone, "Chat session expired")
	CodeMessageEmpty      = ErrRegistry.Register("MESSAGE_EMPTY", errx.TypeValidation, http.StatusBadRequest, "Message content cannot be empty")
	CodeInvalidSessionID  = ErrRegistry.Register("INVALID_SESSION_ID", errx.TypeValidation, http.StatusBadRequest, "Invalid session ID")
	CodeInvalidCursor     = ErrRegistry.Register("INVALID_CURSOR", errx.TypeValidation, http.StatusBadRequest, "Invalid message cursor")
	CodePersistenceFailed = ErrRegistry.Register("PERSISTENCE_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Chat persistence failed")
)

func ErrSessionNotFound() *errx.Error {
	return ErrRegistry.New(CodeSessionNotFound)
}

func ErrSessionExpired() *errx.Error {
	return ErrRegistry.New(CodeSessionExpired)
}

func ErrMessageEmpty() *errx.Error {
	return ErrRegistry.New(CodeMessageEmpty)
}

func ErrInvalidSessionID() *errx.Error {
	return ErrRegistry.New(CodeInvalidSessionID)
}

func ErrInvalidCursor() *errx.Error {
	return ErrRegistry.New(CodeInvalidCursor)
}

func ErrPersistenceFailed() *errx.Error {
	return ErrRegistry.New(CodePersistenceFailed)
}
