package modelsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/version"
)

const (
	DefaultListTimeout = 30 * time.Second
	MaxResponseSize    = 10 * 1024 * 1024 // 10MB limit for model lists

	DefaultMaxIdleConnections        = 10
	DefaultIdleConnTimeout           = 60 * time.Second
	DefaultMaxIdleConnectionsPerHost = 5
)

// HTTPClient interface for better testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient has no overall timeout: pulls stream for as long as the
// pull deadline allows and listing is bounded per call.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        DefaultMaxIdleConnections,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			MaxIdleConnsPerHost: DefaultMaxIdleConnectionsPerHost,
		},
	}
}

// NewClients returns the model client for every supported dialect.
func NewClients(client HTTPClient) map[domain.Dialect]ports.ModelClient {
	return map[domain.Dialect]ports.ModelClient{
		domain.DialectOllama: NewOllamaClient(client),
		domain.DialectOpenAI: NewOpenAIClient(client),
	}
}

// getJSON fetches a bounded JSON document from the backend.
func getJSON(ctx context.Context, client HTTPClient, backend *domain.Backend, path string) ([]byte, error) {
	start := time.Now()
	target := backend.URLFor(path)

	ctx, cancel := context.WithTimeout(ctx, DefaultListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newSyncError(backend.ID, "list", target, 0, time.Since(start), err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", constants.ContentTypeJSON)

	resp, err := client.Do(req)
	if err != nil {
		return nil, newSyncError(backend.ID, "list", target, 0, time.Since(start), err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, newSyncError(backend.ID, "list", target, resp.StatusCode, time.Since(start),
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, newSyncError(backend.ID, "list", target, resp.StatusCode, time.Since(start), err)
	}
	return body, nil
}

var errEmptyModelName = errors.New("model name is empty")
