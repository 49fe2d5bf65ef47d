package auth

import "errors"

var (
	ErrTokenGenerateFail = errors.New("failed to generate token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpToken          = errors.New("expired token")
	ErrNoSecret          = errors.New("auth secret is empty")
)
