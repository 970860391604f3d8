// Package api provides typed wrappers around the platform REST services.
package api

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

	"feedsync/internal/config"
	"feedsync/internal/models"
	"feedsync/internal/observability"

	"go.opentelemetry.io/otel/propagation"
)

// Service names one of the logical backends, each with its own base URL.
type Service string

const (
	ServiceAuth      Service = "auth"
	ServiceSocial    Service = "social"
	ServiceUser      Service = "user"
	ServiceMessaging Service = "messaging"
	ServiceSearch    Service = "search"
	ServicePoints    Service = "points"
	ServiceMedia     Service = "media"
)

// DefaultTimeout bounds every call that does not carry a shorter deadline.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 64 * 1024

// TokenSource supplies the bearer credential for authenticated calls.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource returning a fixed credential.
type StaticToken string

// Token returns the credential.
func (t StaticToken) Token() string { return string(t) }

// Options configure a Client.
type Options struct {
	BaseURLs   map[Service]string
	Tokens     TokenSource
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OptionsFromConfig maps configuration onto client options.
func OptionsFromConfig(cfg *config.Config, tokens TokenSource) Options {
	return Options{
		BaseURLs: map[Service]string{
			ServiceAuth:      cfg.AuthAPIURL,
			ServiceSocial:    cfg.SocialAPIURL,
			ServiceUser:      cfg.UserAPIURL,
			ServiceMessaging: cfg.MessagingAPIURL,
			ServiceSearch:    cfg.SearchAPIURL,
			ServicePoints:    cfg.PointsAPIURL,
			ServiceMedia:     cfg.MediaAPIURL,
		},
		Tokens:  tokens,
		Timeout: cfg.RequestTimeout,
	}
}

// Client performs JSON requests against the platform services.
type Client struct {
	http    *http.Client
	bases   map[Service]string
	tokens  TokenSource
	timeout time.Duration
	loggers map[Service]*observability.APILogger
}

// NewClient returns a new Client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = StaticToken("")
	}

	bases := make(map[Service]string, len(opts.BaseURLs))
	loggers := make(map[Service]*observability.APILogger, len(opts.BaseURLs))
	for svc, base := range opts.BaseURLs {
		bases[svc] = strings.TrimRight(base, "/")
		loggers[svc] = observability.NewAPILogger(string(svc))
	}

	return &Client{
		http:    httpClient,
		bases:   bases,
		tokens:  tokens,
		timeout: timeout,
		loggers: loggers,
	}
}

// Do sends one request and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, svc Service, method, path string, query url.Values, body, out any) error {
	base, ok := c.bases[svc]
	if !ok || base == "" {
		return models.NewInternalError(fmt.Errorf("no base URL configured for %s service", svc))
	}
	logger := c.loggers[svc]

	ctx = observability.EnsureCorrelationID(ctx)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	span, ctx := observability.StartAPISpan(ctx, string(svc), method, path)
	defer span.End()

	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return models.NewInternalError(fmt.Errorf("marshal request body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return models.NewInternalError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := observability.ExtractCorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	observability.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		classified := classifyTransportError(ctx, err)
		observability.ObserveAPICall(string(svc), method, "error", start)
		observability.APIErrors.WithLabelValues(string(svc), errorCodeLabel(classified)).Inc()
		span.SetError(classified)
		logger.LogError(ctx, method, path, classified)
		return classified
	}
	defer func() { _ = resp.Body.Close() }()

	observability.ObserveAPICall(string(svc), method, strconv.Itoa(resp.StatusCode), start)
	logger.LogRequest(ctx, method, path, resp.StatusCode, time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := ClassifyResponse(resp.StatusCode, raw)
		observability.APIErrors.WithLabelValues(string(svc), apiErr.Code).Inc()
		span.SetError(apiErr)
		logger.LogError(ctx, method, path, apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		decodeErr := models.NewInternalError(fmt.Errorf("decode %s %s response: %w", method, path, err))
		span.SetError(decodeErr)
		return decodeErr
	}
	return nil
}

func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		// Superseded or abandoned by the caller; not a user-facing failure.
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.NewTimeoutError(err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewTimeoutError(err)
	}
	return models.NewNetworkError(err)
}

func errorCodeLabel(err error) string {
	if code := models.CodeOf(err); code != "" {
		return code
	}
	return "CANCELED"
}

// ClassifyResponse maps an HTTP error status and body onto the error taxonomy.
func ClassifyResponse(status int, raw []byte) *models.AppError {
	var body models.ErrorResponse
	_ = json.Unmarshal(raw, &body)

	text := body.Text()
	if text == "" {
		text = http.StatusText(status)
	}
	appErr := &models.AppError{Message: text, Status: status}

	lower := strings.ToLower(text)
	switch {
	case body.Code == models.CodeAlreadyDisliked || strings.Contains(lower, "already disliked"):
		appErr.Code = models.CodeAlreadyDisliked
	case body.Code == models.CodeAlreadyLiked || strings.Contains(lower, "already liked"):
		appErr.Code = models.CodeAlreadyLiked
	case body.Code == models.CodeMutualFollowRequired ||
		strings.Contains(lower, "mutual follow") ||
		strings.Contains(lower, "follow each other"):
		appErr.Code = models.CodeMutualFollowRequired
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		appErr.Code = models.CodeValidation
	case status == http.StatusUnauthorized:
		appErr.Code = models.CodeUnauthorized
	case status == http.StatusForbidden:
		appErr.Code = models.CodeForbidden
	case status == http.StatusNotFound:
		appErr.Code = models.CodeNotFound
	case status == http.StatusConflict:
		appErr.Code = models.CodeConflict
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		appErr.Code = models.CodeTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		appErr.Code = models.CodeNetwork
	default:
		appErr.Code = models.CodeInternal
	}
	return appErr
}

func pathEscape(id string) string {
	return url.PathEscape(id)
}
