package services

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNotFound        = errors.New("not found")
	ErrUserExists      = errors.New("user already exists")
	ErrUnauthorized    = errors.New("invalid credentials")
)
