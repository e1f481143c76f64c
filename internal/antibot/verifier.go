// Package antibot verifies challenge tokens submitted with public writes.
package antibot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPTimeout = 10 * time.Second

var (
	errMissingVerifyURL = errors.New("antibot: verify url required when secret is set")
	// ErrVerificationFailed indicates the challenge service rejected the token.
	ErrVerificationFailed = errors.New("antibot: verification failed")
)

// VerifierConfig bundles configuration for the challenge verifier.
type VerifierConfig struct {
	Secret     string
	VerifyURL  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Verifier checks visitor challenge tokens server-side. When no secret is
// configured the verifier passes open; environments without the shared
// secret (local development, previews) accept all submissions.
type Verifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewVerifier constructs a Verifier with validated configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	verifyURL := strings.TrimSpace(cfg.VerifyURL)
	if secret != "" && verifyURL == "" {
		return nil, errMissingVerifyURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		secret:     secret,
		verifyURL:  verifyURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

type verifyResponsePayload struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify submits the token to the challenge service. A nil error means the
// submission may proceed.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return ErrVerificationFailed
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := v.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrVerificationFailed, response.StatusCode)
	}

	var payload verifyResponsePayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return err
	}
	if !payload.Success {
		v.logger.Debug("challenge verification rejected",
			zap.Strings("error_codes", payload.ErrorCodes))
		return fmt.Errorf("%w: %v", ErrVerificationFailed, payload.ErrorCodes)
	}
	return nil
}
