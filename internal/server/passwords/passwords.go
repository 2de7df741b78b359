// Package passwords hashes and verifies account passwords with argon2id.
package passwords

import "github.com/matthewhartstonge/argon2"

// Hasher produces PHC-encoded argon2id hashes.
type Hasher struct {
	config argon2.Config
}

// NewHasher uses the library defaults.
func NewHasher() *Hasher {
	return &Hasher{config: argon2.DefaultConfig()}
}

// NewHasherWithConfig is used where hashing cost must be tuned, e.g. tests.
func NewHasherWithConfig(cfg argon2.Config) *Hasher {
	return &Hasher{config: cfg}
}

func (h *Hasher) Hash(password string) (string, error) {
	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Verify reports whether password matches encoded. Hashes that do not
// decode, such as the empty hash of an account without a usable password,
// never match.
func (h *Hasher) Verify(password, encoded string) bool {
	if encoded == "" {
		return false
	}
	ok, err := argon2.VerifyEncoded([]byte(password), []byte(encoded))
	return err == nil && ok
}
