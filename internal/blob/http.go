package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxListPageSize    = 1000
)

var errMissingBaseURL = errors.New("blob: base url required")

// HTTPStoreConfig bundles configuration for the hosted blob service client.
type HTTPStoreConfig struct {
	BaseURL    string
	ReadToken  string
	WriteToken string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
}

// HTTPStore is a Store backed by the hosted blob service. Reads append a
// cache-busting query parameter so the service's edge cache never serves a
// stale document after a write.
type HTTPStore struct {
	baseURL    string
	readToken  string
	writeToken string
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time
}

// NewHTTPStore constructs an HTTPStore with validated configuration.
func NewHTTPStore(cfg HTTPStoreConfig) (*HTTPStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &HTTPStore{
		baseURL:    baseURL,
		readToken:  strings.TrimSpace(cfg.ReadToken),
		writeToken: strings.TrimSpace(cfg.WriteToken),
		httpClient: httpClient,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Read fetches the blob at key. Missing keys, missing read credentials, and
// non-OK responses all yield (nil, nil); only transport failures surface as
// errors so callers can distinguish "not found" from "service unreachable".
func (s *HTTPStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%s/%s?ts=%d", s.baseURL, key, s.clock().UnixNano())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if s.readToken != "" {
		request.Header.Set("Authorization", "Bearer "+s.readToken)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		if response.StatusCode != http.StatusNotFound {
			s.logger.Debug("blob read returned non-ok status",
				zap.String("key", key),
				zap.Int("status", response.StatusCode))
		}
		return nil, nil
	}

	return io.ReadAll(response.Body)
}

// Write stores the payload under key. A missing write token fails loud.
func (s *HTTPStore) Write(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.writeToken == "" {
		return ErrMissingWriteCredential
	}

	target := fmt.Sprintf("%s/%s", s.baseURL, key)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+s.writeToken)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("blob: write %s returned status %d", key, response.StatusCode)
	}
	return nil
}

// Delete removes the blob at key; a 404 from the service is ignored.
func (s *HTTPStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.writeToken == "" {
		return ErrMissingWriteCredential
	}

	target := fmt.Sprintf("%s/%s", s.baseURL, key)
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+s.writeToken)

	response, err := s.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK &&
		response.StatusCode != http.StatusNoContent &&
		response.StatusCode != http.StatusNotFound {
		return fmt.Errorf("blob: delete %s returned status %d", key, response.StatusCode)
	}
	return nil
}

type listResponsePayload struct {
	Keys   []string `json:"keys"`
	Cursor string   `json:"cursor"`
}

// List pages through keys under prefix using the service's cursor protocol.
func (s *HTTPStore) List(ctx context.Context, prefix, cursor string, limit int) (Page, error) {
	if limit <= 0 || limit > maxListPageSize {
		limit = maxListPageSize
	}

	query := url.Values{}
	query.Set("prefix", prefix)
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	target := fmt.Sprintf("%s/?%s", s.baseURL, query.Encode())
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, err
	}
	if s.readToken != "" {
		request.Header.Set("Authorization", "Bearer "+s.readToken)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return Page{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("blob: list returned status %d", response.StatusCode)
	}

	var payload listResponsePayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Page{}, err
	}
	return Page{Keys: payload.Keys, Cursor: payload.Cursor}, nil
}

func validateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "..") {
		return ErrInvalidKey
	}
	return nil
}
