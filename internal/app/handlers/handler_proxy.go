package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/thushan/flowgate/internal/adapter/translator"
	"github.com/thushan/flowgate/internal/app/middleware"
	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/util"
	"github.com/thushan/flowgate/pkg/format"
)

// proxyHandler serves one client route: resolve the frontend from the Host
// header, validate the body, then hand over to the dispatcher.
func (a *Application) proxyHandler(dialect domain.Dialect, kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := middleware.GetRequestID(ctx)
		if requestID == "" {
			requestID = util.RequestIDFrom(r, constants.HeaderRequestID)
			w.Header().Set(constants.HeaderRequestID, requestID)
		}
		rlog := a.logger.WithRequestID(requestID)

		fe, err := a.frontends.FindByHost(ctx, r.Host)
		if err != nil {
			rlog.Warn("No frontend for host", "host", r.Host, "path", r.URL.Path)
			a.writeError(w, dialect, fmt.Errorf("%w for host %q", err, r.Host))
			return
		}
		ctx = context.WithValue(ctx, constants.ContextFrontendKey, fe)

		body, err := readBody(r)
		if err != nil {
			a.writeError(w, dialect, err)
			return
		}
		if err := a.validator.Validate(dialect, kind, body); err != nil {
			rlog.Debug("Rejected client payload", "frontend", fe.ID, "kind", kind, "error", err)
			a.writeError(w, dialect, err)
			return
		}

		model, _ := translator.ExtractModelName(body)
		rlog.InfoWithFrontend("Request received", fe.ID,
			"kind", kind,
			"dialect", dialect,
			"model", model,
			"request_bytes", format.Bytes(int64(len(body))))

		req := &ports.DispatchRequest{
			Frontend:   fe,
			Header:     r.Header,
			Dialect:    dialect,
			Kind:       kind,
			Method:     r.Method,
			Path:       r.URL.Path,
			RequestID:  requestID,
			StickyKey:  fe.StickyKey(r.Header),
			RemoteAddr: r.RemoteAddr,
			Body:       body,
			TLS:        r.TLS != nil,
		}

		res, err := a.dispatcher.Dispatch(ctx, w, req)
		a.logOutcome(rlog, fe, kind, res, err)
		if err == nil {
			return
		}
		if res != nil && res.Committed {
			// headers are gone, the client sees a truncated body
			return
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		a.writeError(w, dialect, err)
	}
}

func (a *Application) logOutcome(rlog logger.StyledLogger, fe *domain.Frontend, kind domain.RequestKind, res *ports.DispatchResult, err error) {
	if res == nil {
		res = &ports.DispatchResult{}
	}
	backendID := ""
	if res.Backend != nil {
		backendID = res.Backend.ID
	}
	args := []any{
		"frontend", fe.ID,
		"backend", backendID,
		"kind", kind,
		"attempts", res.Attempts,
		"status", res.StatusCode,
		"latency", format.Latency(res.Latency),
		"response_bytes", format.Bytes(res.Bytes),
		"streamed", res.Streamed,
		"translated", res.Translated,
	}
	if err != nil {
		rlog.Warn("Request failed", append(args, "error", err)...)
		return
	}
	rlog.Info("Request completed", args...)
}

// readBody drains the request body. The size limit middleware has already
// wrapped it in a MaxBytesReader when limits are configured.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &domain.ValidationError{Field: "body", Value: tooLarge.Limit, Reason: "request body exceeds the size limit"}
		}
		return nil, fmt.Errorf("%w: reading request body: %v", domain.ErrMalformedPayload, err)
	}
	return body, nil
}
