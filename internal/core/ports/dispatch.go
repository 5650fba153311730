package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
)

// DispatchRequest is a client request already resolved to a frontend and
// classified by kind.
type DispatchRequest struct {
	Frontend   *domain.Frontend
	Header     http.Header
	Dialect    domain.Dialect
	Kind       domain.RequestKind
	Method     string
	Path       string
	RequestID  string
	StickyKey  string
	RemoteAddr string
	Body       []byte
	TLS        bool
}

// DispatchResult describes the attempt that produced the response.
// Committed means response headers already went to the client, so an
// error returned alongside it can only be logged.
type DispatchResult struct {
	Backend    *domain.Backend
	StatusCode int
	Attempts   int
	Bytes      int64
	Latency    time.Duration
	Streamed   bool
	Translated bool
	Committed  bool
}

type Dispatcher interface {
	Dispatch(ctx context.Context, w http.ResponseWriter, req *DispatchRequest) (*DispatchResult, error)
}
