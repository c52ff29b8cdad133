package auth

import (
	"crypto/subtle"
	"time"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
)

// Authenticator checks operator credentials and bearer tokens against the
// security configuration.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash string
	secret       string
	ttl          time.Duration
}

// NewAuthenticator creates an Authenticator from the security config.
func NewAuthenticator(cfg config.SecurityConfig) *Authenticator {
	return &Authenticator{
		enabled:      cfg.Auth.Enabled,
		username:     cfg.Auth.Username,
		passwordHash: cfg.Auth.PasswordHash,
		secret:       cfg.JWT.Secret,
		ttl:          cfg.JWT.TTL(),
	}
}

// Enabled reports whether bearer auth is required.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Login verifies username and password and issues an access token.
//
// Returns:
//   - string: signed access token
//   - time.Time: token expiry
//   - error: ErrInvalidCredentials on a mismatch, ErrInvalidHash if the
//     configured hash is unusable
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1

	// Always run the hash so a wrong username costs the same as a wrong password.
	passOK, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return "", time.Time{}, err
	}
	if !userOK || !passOK {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return IssueToken(a.username, a.secret, a.ttl)
}

// Verify validates a bearer token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
