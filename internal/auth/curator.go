package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	// ErrWrongPassword indicates a failed curator password check.
	ErrWrongPassword   = errors.New("auth: wrong password")
	errMissingPassword = errors.New("auth: curator password must be configured")
	errMissingIssuer   = errors.New("auth: token issuer required")
)

// CuratorGate exchanges the configured curator password for a curator token.
// The comparison is constant-time over fixed-length digests so neither
// content nor length of the configured password leaks through timing.
type CuratorGate struct {
	passwordDigest [sha256.Size]byte
	issuer         *TokenIssuer
}

// NewCuratorGate constructs a gate for the configured password.
func NewCuratorGate(password string, issuer *TokenIssuer) (*CuratorGate, error) {
	if strings.TrimSpace(password) == "" {
		return nil, errMissingPassword
	}
	if issuer == nil {
		return nil, errMissingIssuer
	}
	return &CuratorGate{
		passwordDigest: sha256.Sum256([]byte(password)),
		issuer:         issuer,
	}, nil
}

// Authenticate checks the candidate password and, on success, mints a curator
// token. Failure always returns ErrWrongPassword.
func (g *CuratorGate) Authenticate(candidate string) (string, int64, error) {
	candidateDigest := sha256.Sum256([]byte(candidate))
	if subtle.ConstantTimeCompare(candidateDigest[:], g.passwordDigest[:]) != 1 {
		return "", 0, ErrWrongPassword
	}
	return g.issuer.IssueCuratorToken("curator")
}
