// Package cdn talks to the external image CDN. The site stores only asset
// references (public ids); uploads happen client-side, so the backend's only
// write operation is the signed destroy issued when a memory is deleted.
package cdn

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout        = 15 * time.Second
	defaultDestroyConcurrency = 4
	defaultBreakerFailures    = 3
	defaultBreakerTimeout     = 30 * time.Second
)

var (
	errMissingCloudName = errors.New("cdn: cloud name required")
	errMissingAPIKey    = errors.New("cdn: api key and secret required")
	// ErrDestroyRejected indicates the CDN did not acknowledge the destroy.
	ErrDestroyRejected = errors.New("cdn: destroy rejected")
)

// ClientConfig bundles credentials and tuning for the CDN client.
type ClientConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// APIBaseURL overrides the derived https://api.{cloud} endpoint.
	APIBaseURL         string
	HTTPClient         *http.Client
	Logger             *zap.Logger
	Clock              func() time.Time
	DestroyConcurrency int
}

// Client builds delivery URLs and issues signed destroy calls. Destroys run
// through a circuit breaker so a degraded CDN cannot stall memory deletion.
type Client struct {
	cloudName          string
	apiBaseURL         string
	apiKey             string
	apiSecret          string
	httpClient         *http.Client
	logger             *zap.Logger
	clock              func() time.Time
	breaker            *gobreaker.CircuitBreaker
	destroyConcurrency int
}

// NewClient constructs a Client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	cloudName := strings.TrimSpace(cfg.CloudName)
	if cloudName == "" {
		return nil, errMissingCloudName
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errMissingAPIKey
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
	destroyConcurrency := cfg.DestroyConcurrency
	if destroyConcurrency <= 0 {
		destroyConcurrency = defaultDestroyConcurrency
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cdn-destroy",
		Timeout: defaultBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultBreakerFailures
		},
	})

	apiBaseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if apiBaseURL == "" {
		apiBaseURL = fmt.Sprintf("https://api.%s", cloudName)
	}

	return &Client{
		cloudName:          cloudName,
		apiBaseURL:         apiBaseURL,
		apiKey:             strings.TrimSpace(cfg.APIKey),
		apiSecret:          strings.TrimSpace(cfg.APISecret),
		httpClient:         httpClient,
		logger:             logger,
		clock:              clock,
		breaker:            breaker,
		destroyConcurrency: destroyConcurrency,
	}, nil
}

// DeliveryURL returns an on-the-fly transformation URL for the asset.
func (c *Client) DeliveryURL(publicID string, width, height int) string {
	return fmt.Sprintf("https://res.%s/image/upload/f_auto,q_auto,w_%d,h_%d,c_fill,g_auto/%s",
		c.cloudName, width, height, publicID)
}

// DestroySignature computes the hex SHA-1 signature the destroy endpoint
// expects over the public id, the unix timestamp, and the API secret.
func (c *Client) DestroySignature(publicID string, timestamp int64) string {
	payload := fmt.Sprintf("public_id=%s&timestamp=%d%s", publicID, timestamp, c.apiSecret)
	digest := sha1.Sum([]byte(payload))
	return hex.EncodeToString(digest[:])
}

type destroyResponsePayload struct {
	Result string `json:"result"`
}

// Destroy removes one asset from the CDN. "not found" counts as success so
// retried deletes stay idempotent.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.destroyOnce(ctx, publicID)
	})
	return err
}

func (c *Client) destroyOnce(ctx context.Context, publicID string) error {
	timestamp := c.clock().Unix()

	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("timestamp", strconv.FormatInt(timestamp, 10))
	form.Set("api_key", c.apiKey)
	form.Set("signature", c.DestroySignature(publicID, timestamp))

	target := c.apiBaseURL + "/image/destroy"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrDestroyRejected, response.StatusCode)
	}

	var payload destroyResponsePayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return err
	}
	if payload.Result != "ok" && payload.Result != "not found" {
		return fmt.Errorf("%w: result %q", ErrDestroyRejected, payload.Result)
	}
	return nil
}

// DestroyAll destroys the listed assets with bounded parallelism and returns
// how many failed. Failures are logged per asset; callers decide whether the
// count matters.
func (c *Client) DestroyAll(ctx context.Context, publicIDs []string) int {
	if len(publicIDs) == 0 {
		return 0
	}

	semaphore := make(chan struct{}, c.destroyConcurrency)
	var waitGroup sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, publicID := range publicIDs {
		waitGroup.Add(1)
		go func(publicID string) {
			defer waitGroup.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := c.Destroy(ctx, publicID); err != nil {
				c.logger.Warn("cdn destroy failed",
					zap.String("public_id", publicID),
					zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(publicID)
	}
	waitGroup.Wait()
	return failed
}
