package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultCuratorTokenTTL = time.Hour
	defaultEditTokenTTL    = 90 * 24 * time.Hour

	// ScopeCurator grants edit and delete rights over every memory.
	ScopeCurator = "curator"
	// ScopeEdit grants edit and delete rights over one memory.
	ScopeEdit = "edit"
)

var (
	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingSubjectClaim  = errors.New("auth: subject claim must be provided")
	errMissingMemoryClaim   = errors.New("auth: memory id claim must be provided")
	// ErrInvalidToken indicates a token that failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates a structurally valid but expired token.
	ErrExpiredToken = errors.New("auth: token expired")
)

// SessionClaims is the JWT payload for curator sessions and per-memory edit
// grants.
type SessionClaims struct {
	Scope    string `json:"scope"`
	MemoryID string `json:"memory_id,omitempty"`
	jwt.RegisteredClaims
}

// IsCurator reports whether the claims grant site-wide curation rights.
func (c SessionClaims) IsCurator() bool {
	return c.Scope == ScopeCurator
}

// CanEdit reports whether the claims authorize editing the given memory.
func (c SessionClaims) CanEdit(memoryID string) bool {
	if c.IsCurator() {
		return true
	}
	return c.Scope == ScopeEdit && c.MemoryID != "" && c.MemoryID == memoryID
}

// TokenIssuerConfig configures the backend JWT issuer.
type TokenIssuerConfig struct {
	SigningSecret   []byte
	Issuer          string
	Audience        string
	CuratorTokenTTL time.Duration
	EditTokenTTL    time.Duration
	Clock           func() time.Time
}

// TokenIssuer mints and validates HS256 JWTs for curator sessions and edit
// grants. All authorization decisions happen server-side against these
// tokens; clients hold nothing but the opaque string.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with validated configuration.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("auth: issuer and audience are required")
	}
	if cfg.CuratorTokenTTL <= 0 {
		cfg.CuratorTokenTTL = defaultCuratorTokenTTL
	}
	if cfg.EditTokenTTL <= 0 {
		cfg.EditTokenTTL = defaultEditTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg.Clock = clock
	return &TokenIssuer{config: cfg, clock: clock}, nil
}

// IssueCuratorToken produces a signed curator JWT and its expiry in seconds.
func (i *TokenIssuer) IssueCuratorToken(subject string) (string, int64, error) {
	if strings.TrimSpace(subject) == "" {
		return "", 0, errMissingSubjectClaim
	}
	return i.sign(SessionClaims{Scope: ScopeCurator}, subject, i.config.CuratorTokenTTL)
}

// IssueEditToken produces a signed JWT authorizing edits to one memory. The
// subject is the author's email, which is never rendered publicly.
func (i *TokenIssuer) IssueEditToken(memoryID, authorEmail string) (string, int64, error) {
	if strings.TrimSpace(memoryID) == "" {
		return "", 0, errMissingMemoryClaim
	}
	if strings.TrimSpace(authorEmail) == "" {
		return "", 0, errMissingSubjectClaim
	}
	return i.sign(SessionClaims{Scope: ScopeEdit, MemoryID: memoryID}, authorEmail, i.config.EditTokenTTL)
}

func (i *TokenIssuer) sign(claims SessionClaims, subject string, ttl time.Duration) (string, int64, error) {
	now := i.clock().UTC()
	expiresAt := now.Add(ttl).UTC()

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.config.Issuer,
		Audience:  []string{i.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken parses and verifies a token string and returns its claims.
func (i *TokenIssuer) ValidateToken(tokenString string) (SessionClaims, error) {
	trimmed := strings.TrimSpace(tokenString)
	if trimmed == "" {
		return SessionClaims{}, ErrInvalidToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		trimmed,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithAudience(i.config.Audience),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, errMissingSubjectClaim
	}
	return *claims, nil
}
