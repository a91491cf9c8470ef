package jwt

import "errors"

var (
	ErrNoToken        = errors.New("jwt: no bearer token")
	ErrMalformedToken = errors.New("jwt: malformed token")
)
