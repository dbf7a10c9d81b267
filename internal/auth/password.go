package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for an admin hash that is not a PHC-encoded
// argon2id string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// argonParams are the cost settings stored in the hash itself, so raising
// them later does not lock out an existing NGX_ADMIN_PASSWORD_HASH.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// PasswordHasher produces and checks encoded argon2id hashes for the admin
// password. The encoded form is what goes into NGX_ADMIN_PASSWORD_HASH.
type PasswordHasher struct {
	params  argonParams
	saltLen int
	keyLen  uint32
}

// NewPasswordHasher uses 64 MB, three passes and two lanes. The config tool
// runs on small bench PCs, the server only checks one password per session.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		params:  argonParams{memory: 64 * 1024, time: 3, threads: 2},
		saltLen: 16,
		keyLen:  32,
	}
}

// HashPassword returns $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>.
func (ph *PasswordHasher) HashPassword(password string) (string, error) {
	salt := make([]byte, ph.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	p := ph.params
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, ph.keyLen)
	return encodeHash(p, salt, key), nil
}

// VerifyPassword checks a password against an encoded hash, using the cost
// settings recorded in the hash.
func (ph *PasswordHasher) VerifyPassword(password, encodedHash string) (bool, error) {
	p, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, got) == 1, nil
}

func encodeHash(p argonParams, salt, key []byte) string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key))
}

func decodeHash(s string) (p argonParams, salt, key []byte, err error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	f := strings.Split(s, "$")
	if len(f) != 6 || f[0] != "" || f[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(f[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, f[2])
	}
	if _, err := fmt.Sscanf(f[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(f[4]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(f[5]); err != nil {
		return p, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	if len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: empty key", ErrInvalidHash)
	}
	return p, salt, key, nil
}
