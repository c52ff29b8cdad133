package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for malformed, expired or wrongly signed tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored password hash cannot be parsed.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrPasswordTooShort is returned by HashPassword for short passwords.
	ErrPasswordTooShort = errors.New("auth: password too short")

	// ErrMissingSecret is returned when signing or verifying without a secret.
	ErrMissingSecret = errors.New("auth: jwt secret is empty")
)
