package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SolsticeMemorials/keepsake/backend/internal/auth"
	"github.com/SolsticeMemorials/keepsake/backend/internal/memories"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sessionClaimsContextKey = "keepsake_session_claims"

var (
	errMissingMemoriesService = errors.New("memories service dependency required")
	errMissingTokenAuthority  = errors.New("token authority dependency required")
	errMissingCuratorGate     = errors.New("curator gate dependency required")
	errMissingChallengeCheck  = errors.New("challenge verifier dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// MemoryService is the slice of the memories service the router consumes.
type MemoryService interface {
	Create(ctx context.Context, input memories.MemoryInput) (memories.MemoryDetail, error)
	Get(ctx context.Context, id memories.MemoryID) (memories.MemoryDetail, error)
	Update(ctx context.Context, id memories.MemoryID, input memories.MemoryInput) (memories.MemoryDetail, error)
	Delete(ctx context.Context, id memories.MemoryID) error
	List(ctx context.Context) ([]memories.IndexItem, error)
	SeedBulk(ctx context.Context, count int) (int, error)
	PurgeSeeded(ctx context.Context) (int, error)
}

// TokenAuthority validates bearer tokens and mints per-memory edit tokens.
type TokenAuthority interface {
	ValidateToken(tokenString string) (auth.SessionClaims, error)
	IssueEditToken(memoryID, authorEmail string) (string, int64, error)
}

// CuratorAuthenticator exchanges the curator password for a session token.
type CuratorAuthenticator interface {
	Authenticate(candidate string) (string, int64, error)
}

// ChallengeVerifier checks visitor anti-bot tokens on public writes.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Dependencies wires the router's collaborators.
type Dependencies struct {
	Memories    MemoryService
	Tokens      TokenAuthority
	CuratorGate CuratorAuthenticator
	Antibot     ChallengeVerifier
	RateLimiter *rate.Limiter
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router for the public and admin API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Memories == nil {
		return nil, errMissingMemoriesService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenAuthority
	}
	if deps.CuratorGate == nil {
		return nil, errMissingCuratorGate
	}
	if deps.Antibot == nil {
		return nil, errMissingChallengeCheck
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		memories:    deps.Memories,
		tokens:      deps.Tokens,
		curatorGate: deps.CuratorGate,
		antibot:     deps.Antibot,
		limiter:     deps.RateLimiter,
		logger:      logger,
	}

	api := router.Group("/api")
	api.GET("/memories", handler.handleListMemories)
	api.GET("/memory/:id", handler.handleGetMemory)
	api.POST("/memory", handler.throttle, handler.handleCreateMemory)

	authorized := api.Group("/")
	authorized.Use(handler.authorizeRequest)
	authorized.PUT("/memory/:id", handler.handleUpdateMemory)
	authorized.DELETE("/memory/:id", handler.handleDeleteMemory)

	admin := api.Group("/admin")
	admin.POST("/session", handler.throttle, handler.handleCuratorSession)

	adminOnly := admin.Group("/")
	adminOnly.Use(handler.authorizeRequest, handler.requireCurator)
	adminOnly.POST("/bulk-memories", handler.handleBulkCreate)
	adminOnly.DELETE("/bulk-memories", handler.handleBulkDelete)

	return router, nil
}

type httpHandler struct {
	memories    MemoryService
	tokens      TokenAuthority
	curatorGate CuratorAuthenticator
	antibot     ChallengeVerifier
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// throttle applies the shared token bucket to abuse-prone routes.
func (h *httpHandler) throttle(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireCurator(c *gin.Context) {
	claims, ok := sessionClaimsFrom(c)
	if !ok || !claims.IsCurator() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "curator_required"})
		return
	}
	c.Next()
}

func sessionClaimsFrom(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(sessionClaimsContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}
