package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const suffixBytes = 8

// Generator builds token strings. The first part is a JWT signed with a key
// derived from the server secret and the account's current state, so it
// cannot be forged without both. The second part is plain randomness.
type Generator struct {
	secret []byte
	now    func() time.Time
}

func NewGenerator(secret string) *Generator {
	return &Generator{secret: []byte(secret), now: time.Now}
}

// stateFingerprint changes whenever the credentials or verification state do.
func stateFingerprint(a *models.Account) []byte {
	return []byte(a.ID + "|" + a.Email + "|" + a.PasswordHash + "|" +
		strconv.FormatBool(a.EmailVerified) + "|" + strconv.FormatInt(a.Modified.UnixNano(), 10))
}

func (g *Generator) signingKey(a *models.Account) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, g.secret, []byte(a.ID), stateFingerprint(a))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Make returns a fresh token for a. Two calls never return the same string.
func (g *Generator) Make(a *models.Account) (string, error) {
	key, err := g.signingKey(a)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	jti, err := randomHex(16)
	if err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  a.ID,
		ID:       jti,
		IssuedAt: jwt.NewNumericDate(g.now()),
	}).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	suffix, err := randomHex(suffixBytes)
	if err != nil {
		return "", err
	}
	return signed + "." + suffix, nil
}
