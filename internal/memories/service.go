package memories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingDocumentStore = errors.New("document store is required")
	errMissingIndexStore    = errors.New("index store is required")
	errMissingAggregator    = errors.New("aggregator is required")
	errMissingIDProvider    = errors.New("id provider is required")
	noOpLogger              = zap.NewNop()
)

// ServiceError carries a machine-readable operation.reason code alongside the
// underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "memories.service.new"
	opCreateMemory = "memories.create"
	opGetMemory    = "memories.get"
	opUpdateMemory = "memories.update"
	opDeleteMemory = "memories.delete"
	opListMemories = "memories.list"
	opSeedMemories = "memories.seed"
	opPurgeSeeded  = "memories.purge_seeded"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// PhotoDestroyer removes CDN assets referenced by deleted memories. Failures
// are reported as a count; the delete operation does not depend on them.
type PhotoDestroyer interface {
	DestroyAll(ctx context.Context, publicIDs []string) int
}

// ServiceConfig bundles the service's collaborators and limits.
type ServiceConfig struct {
	Documents    *DocumentStore
	Index        *IndexStore
	Aggregator   *Aggregator
	Destroyer    PhotoDestroyer
	Clock        func() time.Time
	IDProvider   IDProvider
	Logger       *zap.Logger
	BodyMaxChars int
	ExcerptChars int
}

// Service implements memory CRUD over the document and index stores. Every
// document write re-derives the memory's index item in the same operation, so
// the list view never drifts from the primary store.
type Service struct {
	documents    *DocumentStore
	index        *IndexStore
	aggregator   *Aggregator
	destroyer    PhotoDestroyer
	clock        func() time.Time
	idProvider   IDProvider
	logger       *zap.Logger
	bodyMaxChars int
	excerptChars int
}

// NewService constructs a Service with validated configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Documents == nil {
		return nil, newServiceError(opServiceNew, "missing_document_store", errMissingDocumentStore)
	}
	if cfg.Index == nil {
		return nil, newServiceError(opServiceNew, "missing_index_store", errMissingIndexStore)
	}
	if cfg.Aggregator == nil {
		return nil, newServiceError(opServiceNew, "missing_aggregator", errMissingAggregator)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	bodyMaxChars := cfg.BodyMaxChars
	if bodyMaxChars <= 0 {
		bodyMaxChars = 5000
	}
	excerptChars := cfg.ExcerptChars
	if excerptChars <= 0 {
		excerptChars = 200
	}

	return &Service{
		documents:    cfg.Documents,
		index:        cfg.Index,
		aggregator:   cfg.Aggregator,
		destroyer:    cfg.Destroyer,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
		bodyMaxChars: bodyMaxChars,
		excerptChars: excerptChars,
	}, nil
}

// MemoryInput is the caller-supplied content for a create or update.
type MemoryInput struct {
	Name   string
	Email  string
	Title  string
	Date   string
	Body   string
	Photos []Photo
	Seeded bool
}

func (s *Service) validateInput(operation string, input MemoryInput) (MemoryInput, error) {
	if len([]rune(input.Name)) == 0 || len(input.Name) > maxIdentifierLength {
		return MemoryInput{}, newServiceError(operation, "invalid_name", ErrInvalidAuthorName)
	}
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return MemoryInput{}, newServiceError(operation, "invalid_email", err)
	}
	input.Email = email

	bodyRunes := len([]rune(input.Body))
	if bodyRunes == 0 {
		return MemoryInput{}, newServiceError(operation, "empty_body", ErrInvalidBody)
	}
	if bodyRunes > s.bodyMaxChars {
		return MemoryInput{}, newServiceError(operation, "body_too_long",
			fmt.Errorf("%w: exceeds %d characters", ErrInvalidBody, s.bodyMaxChars))
	}

	input.Photos = NormalizePhotos(input.Photos)
	return input, nil
}

// Create validates the input, assigns an id, and writes the document followed
// by its derived index item. The returned detail is the stored document.
func (s *Service) Create(ctx context.Context, input MemoryInput) (MemoryDetail, error) {
	input, err := s.validateInput(opCreateMemory, input)
	if err != nil {
		return MemoryDetail{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateMemory, "id_generation_failed", err)
		return MemoryDetail{}, newServiceError(opCreateMemory, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	doc := MemoryDetail{
		ID:        id,
		Name:      input.Name,
		Email:     input.Email,
		Title:     input.Title,
		Date:      NormalizeDate(input.Date, now),
		Body:      input.Body,
		Photos:    input.Photos,
		Seeded:    input.Seeded,
		CreatedAt: now.Format(time.RFC3339),
	}

	if err := s.writeDocumentAndIndex(ctx, opCreateMemory, doc); err != nil {
		return MemoryDetail{}, err
	}
	return doc, nil
}

// Get returns the document for id. Absent and tombstoned documents both
// surface as ErrNotFound.
func (s *Service) Get(ctx context.Context, id MemoryID) (MemoryDetail, error) {
	doc, found, err := s.documents.Get(ctx, id)
	if err != nil {
		s.logError(opGetMemory, "document_read_failed", err, zap.String("memory_id", id.String()))
		return MemoryDetail{}, newServiceError(opGetMemory, "document_read_failed", err)
	}
	if !found || doc.IsDeleted() {
		return MemoryDetail{}, newServiceError(opGetMemory, "not_found", ErrNotFound)
	}
	return doc, nil
}

// Update overwrites the document in place, preserving id and created_at, and
// re-derives the index item so cover and excerpt stay in sync.
func (s *Service) Update(ctx context.Context, id MemoryID, input MemoryInput) (MemoryDetail, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return MemoryDetail{}, err
	}

	input, err = s.validateInput(opUpdateMemory, input)
	if err != nil {
		return MemoryDetail{}, err
	}

	doc := MemoryDetail{
		ID:        existing.ID,
		Name:      input.Name,
		Email:     input.Email,
		Title:     input.Title,
		Date:      NormalizeDate(input.Date, s.clock().UTC()),
		Body:      input.Body,
		Photos:    input.Photos,
		Seeded:    existing.Seeded,
		CreatedAt: existing.CreatedAt,
	}

	if err := s.writeDocumentAndIndex(ctx, opUpdateMemory, doc); err != nil {
		return MemoryDetail{}, err
	}
	return doc, nil
}

// Delete tombstones the document, removes its index item, and best-effort
// destroys the referenced CDN assets. Asset destruction failures are logged
// and swallowed; the memory is gone from the listing regardless.
func (s *Service) Delete(ctx context.Context, id MemoryID) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.documents.Tombstone(ctx, doc); err != nil {
		s.logError(opDeleteMemory, "tombstone_failed", err, zap.String("memory_id", id.String()))
		return newServiceError(opDeleteMemory, "tombstone_failed", err)
	}
	if err := s.index.Delete(ctx, id); err != nil {
		s.logError(opDeleteMemory, "index_delete_failed", err, zap.String("memory_id", id.String()))
		return newServiceError(opDeleteMemory, "index_delete_failed", err)
	}

	if s.destroyer != nil && len(doc.Photos) > 0 {
		publicIDs := make([]string, 0, len(doc.Photos))
		for _, photo := range doc.Photos {
			publicIDs = append(publicIDs, photo.PublicID)
		}
		if failed := s.destroyer.DestroyAll(ctx, publicIDs); failed > 0 {
			s.logger.Warn("cdn asset cleanup incomplete",
				zap.String("memory_id", id.String()),
				zap.Int("failed", failed),
				zap.Int("total", len(publicIDs)))
		}
	}
	return nil
}

// List returns the aggregated index items, newest first, capped at the
// aggregator's maximum.
func (s *Service) List(ctx context.Context) ([]IndexItem, error) {
	items, err := s.aggregator.Aggregate(ctx)
	if err != nil {
		s.logError(opListMemories, "aggregate_failed", err)
		return nil, newServiceError(opListMemories, "aggregate_failed", err)
	}
	return items, nil
}

func (s *Service) writeDocumentAndIndex(ctx context.Context, operation string, doc MemoryDetail) error {
	if err := s.documents.Put(ctx, doc); err != nil {
		s.logError(operation, "document_write_failed", err, zap.String("memory_id", doc.ID))
		return newServiceError(operation, "document_write_failed", err)
	}
	if err := s.index.Put(ctx, DeriveIndexItem(doc, s.excerptChars)); err != nil {
		s.logError(operation, "index_write_failed", err, zap.String("memory_id", doc.ID))
		return newServiceError(operation, "index_write_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("memories service error", attrs...)
}
