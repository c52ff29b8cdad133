package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLength is the shortest password HashPassword accepts.
const MinPasswordLength = 8

const (
	saltLen = 16
	keyLen  = 32
)

// argonParams are the Argon2id cost settings recorded in each hash.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// defaultParams follows the OWASP baseline for Argon2id.
var defaultParams = argonParams{memory: 64 * 1024, time: 3, threads: 1}

func (p argonParams) key(password string, salt []byte, n uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, n)
}

// HashPassword hashes password with Argon2id into PHC string form,
// e.g. $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>. This is the value
// expected in security.auth.password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: need at least %d characters", ErrPasswordTooShort, MinPasswordLength)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := defaultParams
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(salt), b64.EncodeToString(p.key(password, salt, keyLen)),
	), nil
}

// VerifyPassword reports whether password matches encodedHash. The cost
// parameters are read from the hash, so hashes made with older settings
// still verify.
//
// Returns:
//   - bool: true on a match
//   - error: wrapping ErrInvalidHash if encodedHash is malformed
func VerifyPassword(password, encodedHash string) (bool, error) {
	p, salt, want, err := parsePHC(encodedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	got := p.key(password, salt, uint32(len(want))) //nolint:gosec // G115: decoded hash is short
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// parsePHC splits $argon2id$v=V$m=M,t=T,p=P$salt$hash.
func parsePHC(encoded string) (p argonParams, salt, hash []byte, err error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return p, nil, nil, fmt.Errorf("want 6 $-separated fields, got %d", len(fields))
	}
	if fields[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported algorithm %q", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported version field %q", fields[2])
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("parsing parameters: %w", err)
	}

	b64 := base64.RawStdEncoding
	if salt, err = b64.DecodeString(fields[4]); err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = b64.DecodeString(fields[5]); err != nil {
		return p, nil, nil, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return p, nil, nil, fmt.Errorf("empty hash")
	}
	return p, salt, hash, nil
}
