package models

import "errors"

// Refresh failures. Every fetch failure matches ErrNetwork; malformed bodies
// additionally match ErrParse.
var (
	ErrNetwork       = errors.New("network error")
	ErrParse         = errors.New("parse error")
	ErrEmptyResponse = errors.New("empty response")
)
