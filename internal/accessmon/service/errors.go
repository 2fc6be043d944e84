package service

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the parent of every validation failure; match it with
// errors.Is to map any of them to a client error.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidUserID  = fmt.Errorf("%w: userId is required", ErrInvalidInput)
	ErrInvalidProfile = fmt.Errorf("%w: name, email and department are required", ErrInvalidInput)
	ErrInvalidEmail   = fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	ErrInvalidRange   = fmt.Errorf("%w: from must not be after to", ErrInvalidInput)

	ErrUnregisteredUser = errors.New("user is not registered")
	ErrDuplicateUser    = errors.New("user is already registered")
)
