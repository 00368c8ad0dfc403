package messaging

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotFailed            = errors.New("message is not in failed state")
	ErrInvalidRequest       = errors.New("invalid request")
)
