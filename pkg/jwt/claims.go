package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims is a decoded, unverified JWT payload.
type Claims = gojwt.MapClaims

var parser = gojwt.NewParser()

// BearerToken returns the token from an "Authorization: Bearer <token>"
// header. The scheme match is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Decode reads the payload segment of token without verifying its
// signature or inspecting its header. Callers must only use the result for
// routing decisions when signature verification happens elsewhere in the
// request pipeline.
func Decode(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: token has %d segments", ErrMalformedToken, len(parts))
	}
	payload, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}
	claims := Claims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}
	return claims, nil
}

// FromRequest decodes the bearer token of r. It returns ErrNoToken when
// the request carries none.
func FromRequest(r *http.Request) (Claims, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, ErrNoToken
	}
	return Decode(token)
}

// Lookup returns the first of keys whose claim is a non-empty string or a
// number. Numbers are formatted without exponent or trailing zeros.
func Lookup(claims Claims, keys ...string) (string, bool) {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}
