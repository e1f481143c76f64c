package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/SolsticeMemorials/keepsake/backend/internal/auth"
	"github.com/SolsticeMemorials/keepsake/backend/internal/memories"
	"go.uber.org/zap"
)

// stubMemoryService lets handler tests script service behavior per call.
type stubMemoryService struct {
	createFunc func(ctx context.Context, input memories.MemoryInput) (memories.MemoryDetail, error)
	getFunc    func(ctx context.Context, id memories.MemoryID) (memories.MemoryDetail, error)
	updateFunc func(ctx context.Context, id memories.MemoryID, input memories.MemoryInput) (memories.MemoryDetail, error)
	deleteFunc func(ctx context.Context, id memories.MemoryID) error
	listFunc   func(ctx context.Context) ([]memories.IndexItem, error)
	seedFunc   func(ctx context.Context, count int) (int, error)
	purgeFunc  func(ctx context.Context) (int, error)
}

var errStubNotScripted = errors.New("stub call not scripted")

func (s *stubMemoryService) Create(ctx context.Context, input memories.MemoryInput) (memories.MemoryDetail, error) {
	if s.createFunc == nil {
		return memories.MemoryDetail{}, errStubNotScripted
	}
	return s.createFunc(ctx, input)
}

func (s *stubMemoryService) Get(ctx context.Context, id memories.MemoryID) (memories.MemoryDetail, error) {
	if s.getFunc == nil {
		return memories.MemoryDetail{}, errStubNotScripted
	}
	return s.getFunc(ctx, id)
}

func (s *stubMemoryService) Update(ctx context.Context, id memories.MemoryID, input memories.MemoryInput) (memories.MemoryDetail, error) {
	if s.updateFunc == nil {
		return memories.MemoryDetail{}, errStubNotScripted
	}
	return s.updateFunc(ctx, id, input)
}

func (s *stubMemoryService) Delete(ctx context.Context, id memories.MemoryID) error {
	if s.deleteFunc == nil {
		return errStubNotScripted
	}
	return s.deleteFunc(ctx, id)
}

func (s *stubMemoryService) List(ctx context.Context) ([]memories.IndexItem, error) {
	if s.listFunc == nil {
		return nil, errStubNotScripted
	}
	return s.listFunc(ctx)
}

func (s *stubMemoryService) SeedBulk(ctx context.Context, count int) (int, error) {
	if s.seedFunc == nil {
		return 0, errStubNotScripted
	}
	return s.seedFunc(ctx, count)
}

func (s *stubMemoryService) PurgeSeeded(ctx context.Context) (int, error) {
	if s.purgeFunc == nil {
		return 0, errStubNotScripted
	}
	return s.purgeFunc(ctx)
}

// stubChallengeVerifier scripts the anti-bot decision.
type stubChallengeVerifier struct {
	err error
}

func (v *stubChallengeVerifier) Verify(_ context.Context, _, _ string) error {
	return v.err
}

func newTestTokenIssuer(testContext *testing.T) *auth.TokenIssuer {
	testContext.Helper()
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "keepsake-auth",
		Audience:      "keepsake-api",
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}
	return issuer
}

func newTestHandler(testContext *testing.T, service MemoryService, antibotErr error) (http.Handler, *auth.TokenIssuer, *auth.CuratorGate) {
	testContext.Helper()
	issuer := newTestTokenIssuer(testContext)
	gate, err := auth.NewCuratorGate("curator-password", issuer)
	if err != nil {
		testContext.Fatalf("failed to construct curator gate: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Memories:    service,
		Tokens:      issuer,
		CuratorGate: gate,
		Antibot:     &stubChallengeVerifier{err: antibotErr},
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	return handler, issuer, gate
}
