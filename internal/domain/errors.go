package domain

import "errors"

// Store sentinels shared by every persistence implementation.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
