package credential

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltBytes  = 24
	HashBytes  = 24
	Iterations = 64000
)

var ErrMalformedSalt = errors.New("credential: malformed salt")

// GenerateSalt returns SaltBytes of cryptographically secure randomness.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("credential: generate salt: %w", err)
	}
	return salt, nil
}

// Hash derives the password key with PBKDF2. HMAC-SHA1 keeps stored hashes
// verifiable across the existing account store.
func Hash(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, HashBytes, sha1.New)
}

func Verify(password string, salt, expected []byte) bool {
	return subtle.ConstantTimeCompare(Hash(password, salt), expected) == 1
}

// Credential is the base64 form persisted on an account.
type Credential struct {
	Hash string
	Salt string
}

// New salts and hashes password.
func New(password string) (Credential, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Hash: base64.StdEncoding.EncodeToString(Hash(password, salt)),
		Salt: base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// WithSalt rehashes password under an already stored salt.
func WithSalt(password, encodedSalt string) (Credential, error) {
	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil || len(salt) == 0 {
		return Credential{}, ErrMalformedSalt
	}
	return Credential{
		Hash: base64.StdEncoding.EncodeToString(Hash(password, salt)),
		Salt: encodedSalt,
	}, nil
}

// Matches reports whether password reproduces the stored hash. Undecodable
// stored values never match.
func (c Credential) Matches(password string) bool {
	salt, err := base64.StdEncoding.DecodeString(c.Salt)
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(c.Hash)
	if err != nil {
		return false
	}
	return Verify(password, salt, expected)
}
