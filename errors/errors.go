package errors

import "fmt"

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyContent        = fmt.Errorf("message content is empty")
	ErrAnonymous           = fmt.Errorf("anonymous session cannot write")
	ErrForbidden           = fmt.Errorf("action not allowed for this identity")
	ErrMessageNotFound     = fmt.Errorf("message not found")
	ErrUserNotFound        = fmt.Errorf("user not found")
	ErrInvalidFrame        = fmt.Errorf("invalid frame")
	ErrInvalidToken        = fmt.Errorf("invalid or expired token")
	ErrInvalidTelegramHash = fmt.Errorf("telegram login hash mismatch")
	ErrUnknownDriver       = fmt.Errorf("unknown storage driver")
	ErrEmptyWords          = fmt.Errorf("no censored words found")
)
