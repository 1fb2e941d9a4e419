package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrUnknownResource    = errors.New("unknown_resource")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrUsernameTaken      = errors.New("username_taken")
)
