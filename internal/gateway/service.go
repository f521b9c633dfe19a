package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"swap-settlement-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Service is a client for the exchange REST API
type Service struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// envelope wraps every exchange response
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewService(cfg models.GatewayConfig) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}

	httpClient, err := NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return newServiceWithClient(cfg, httpClient), nil
}

func newServiceWithClient(cfg models.GatewayConfig, httpClient *http.Client) *Service {
	return &Service{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/",
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// NewHTTPClient returns a client on a pooled HTTP/2 transport.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// do performs one API call and decodes the envelope's data into out.
func (s *Service) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("unable to build %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	zap.L().Debug("Making gateway request",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.String("path", path))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		zap.L().Error("Gateway request failed - network error",
			zap.String("operation", operation),
			zap.Error(err))
		return &Error{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Operation: operation, Err: fmt.Errorf("unable to read response: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := env.Message
		if decodeErr != nil || message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		zap.L().Error("Gateway request failed - server error",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", message))
		return &Error{Operation: operation, StatusCode: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return &Error{Operation: operation, StatusCode: http.StatusBadGateway,
			Message: "malformed response", Err: decodeErr}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Operation: operation, StatusCode: http.StatusBadGateway,
			Message: "unexpected response data", Err: err}
	}
	return nil
}
