package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/adapter/translator"
	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/pkg/pool"
)

/*
Request lifecycle:

	Received -> CapabilityChecked -> PropertyPinned -> BackendSelected
	  -> (Translated) -> Forwarded -> (Translated) -> Completed

- Frontend capability and pinned properties are applied once, before any
  backend is chosen. Backend capability and pinned properties apply per
  candidate, after the body is in the backend's dialect.
- A failed attempt loops back to the next candidate only when the frontend
  allows retries, the failure is a timeout, connection error or 5xx, and
  nothing has been written to the client yet.
- Candidates come from the balancer, so retries are bounded by the
  number of member backends.
*/

// Dispatcher implements ports.Dispatcher over HTTP.
type Dispatcher struct {
	balancer   ports.Balancer
	affinity   ports.AffinityTable
	translator *translator.Registry
	client     *http.Client
	buffers    *pool.Pool[*[]byte]
	metrics    ports.MetricsRecorder
	config     *Configuration
	logger     logger.StyledLogger
}

var _ ports.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(
	balancer ports.Balancer,
	affinity ports.AffinityTable,
	registry *translator.Registry,
	configuration *Configuration,
	metrics ports.MetricsRecorder,
	log logger.StyledLogger,
) (*Dispatcher, error) {
	if configuration == nil {
		configuration = &Configuration{}
	}
	configuration.applyDefaults()
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}

	buffers, err := pool.NewBufferPool(configuration.StreamBufferSize)
	if err != nil {
		return nil, fmt.Errorf("creating stream buffer pool: %w", err)
	}

	return &Dispatcher{
		balancer:   balancer,
		affinity:   affinity,
		translator: registry,
		// no client timeout, every attempt carries its own deadline
		client:  &http.Client{Transport: NewTransport(configuration)},
		buffers: buffers,
		metrics: metrics,
		config:  configuration,
		logger:  log,
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, w http.ResponseWriter, req *ports.DispatchRequest) (*ports.DispatchResult, error) {
	start := time.Now()
	fe := req.Frontend
	rlog := d.logger.WithRequestID(req.RequestID)
	res := &ports.DispatchResult{}

	finish := func(err error) (*ports.DispatchResult, error) {
		res.Latency = time.Since(start)
		backendID := ""
		if res.Backend != nil {
			backendID = res.Backend.ID
		}
		d.metrics.RecordDispatch(fe.ID, backendID, req.Kind, outcome(err), res.Latency)
		return res, err
	}

	if !fe.Capabilities.Allows(req.Kind) {
		rlog.Debug("Request kind disabled on frontend", "frontend", fe.ID, "kind", req.Kind)
		return finish(&domain.CapabilityDisabledError{Kind: req.Kind, Scope: "frontend", ID: fe.ID})
	}

	body, err := ApplyPinned(req.Body, fe.Pinned.For(req.Kind))
	if err != nil {
		return finish(err)
	}

	sel, err := d.balancer.SelectCandidates(ctx, fe, req.StickyKey)
	if err != nil {
		return finish(fmt.Errorf("selecting backends for %s: %w", fe.ID, err))
	}
	if sel.Empty() {
		rlog.Warn("No healthy backend for frontend", "frontend", fe.ID, "members", len(fe.Backends))
		return finish(&domain.NoHealthyBackendError{FrontendID: fe.ID})
	}

	var lastErr, skipErr error
	for i, backend := range sel.Candidates {
		if !backend.Capabilities.Allows(req.Kind) {
			skipErr = &domain.CapabilityDisabledError{Kind: req.Kind, Scope: "backend", ID: backend.ID}
			rlog.Debug("Skipping backend, request kind disabled", "backend", backend.ID, "kind", req.Kind)
			continue
		}
		if backend.Dialect != req.Dialect && !d.translator.CanHandle(backend.Dialect, req.Kind) {
			skipErr = domain.NewTransformationError(req.Dialect, backend.Dialect, translator.StageEncodeRequest, req.Kind.String(), nil,
				fmt.Errorf("%w: %s backends cannot serve %s requests", domain.ErrUnsupportedOperation, backend.Dialect, req.Kind))
			rlog.Debug("Skipping backend, dialect cannot serve request", "backend", backend.ID, "dialect", backend.Dialect, "kind", req.Kind)
			continue
		}

		if res.Attempts > 0 {
			d.metrics.RecordRetry(fe.ID, backend.ID)
			rlog.InfoWithBackend("Retrying request on next backend", backend.ID, "attempt", res.Attempts+1, "previous_error", lastErr)
		}
		res.Attempts++
		res.Backend = backend

		err := d.attempt(ctx, w, req, backend, body, res)
		if err == nil {
			d.bindSticky(ctx, req, sel, i, backend, rlog)
			rlog.Debug("Request served",
				"frontend", fe.ID,
				"backend", backend.ID,
				"kind", req.Kind,
				"status", res.StatusCode,
				"bytes", res.Bytes,
				"translated", res.Translated,
				"streamed", res.Streamed)
			return finish(nil)
		}

		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			rlog.Debug("Client went away mid request", "backend", backend.ID)
			return finish(err)
		}
		rlog.WarnWithBackend("Backend attempt failed", backend.ID, "attempt", res.Attempts, "error", err)

		if res.Committed || !fe.AllowRetries || !isRetryable(ctx, err) {
			return finish(err)
		}
	}

	res.Backend = nil
	if res.Attempts == 0 && skipErr != nil {
		return finish(skipErr)
	}
	return finish(&domain.NoHealthyBackendError{FrontendID: fe.ID, Attempts: res.Attempts, LastErr: lastErr})
}

func (d *Dispatcher) timeoutFor(fe *domain.Frontend) time.Duration {
	if fe.Timeout > 0 {
		return fe.Timeout
	}
	return d.config.DefaultTimeout
}

// attempt sends the request to one backend and, on success, writes the
// response in the client's dialect.
func (d *Dispatcher) attempt(ctx context.Context, w http.ResponseWriter, req *ports.DispatchRequest, backend *domain.Backend, body []byte, res *ports.DispatchResult) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dl := startDeadline(d.timeoutFor(req.Frontend), cancel)
	defer dl.stop()

	translated := backend.Dialect != req.Dialect
	method, path, payload := req.Method, req.Path, body
	if translated {
		up, err := d.translator.TranslateRequest(req.Dialect, backend.Dialect, req.Kind, body)
		if err != nil {
			d.recordTransformError(err)
			return err
		}
		method, path, payload = up.Method, up.Path, up.Body
	}
	payload, err := ApplyPinned(payload, backend.Pinned.For(req.Kind))
	if err != nil {
		return err
	}

	var reqBody io.Reader = http.NoBody
	if len(payload) > 0 {
		reqBody = bytes.NewReader(payload)
	}
	url := backend.URLFor(path)
	upReq, err := http.NewRequestWithContext(attemptCtx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("building upstream request: %w", err)
	}
	CopyHeaders(upReq, req.Header, req.RemoteAddr, req.TLS)
	if len(payload) > 0 {
		upReq.Header.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	}
	if req.RequestID != "" {
		upReq.Header.Set(constants.HeaderRequestID, req.RequestID)
	}

	started := time.Now()
	resp, err := d.client.Do(upReq)
	if err != nil {
		return attemptError(ctx, err, dl, backend, url, started)
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &domain.UpstreamError{
			BackendID:  backend.ID,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       errBody,
			Latency:    time.Since(started),
		}
	}

	streaming := isStreamingResponse(resp, translator.IsStreaming(req.Dialect, req.Kind, req.Body))
	res.Streamed = streaming
	if streaming {
		dl.touch()
	}
	res.Translated = translated
	flush := flusherFor(w)

	switch {
	case !translated:
		h := w.Header()
		copyResponseHeaders(h, resp.Header, false, streaming)
		SetResponseHeaders(h, req.RequestID, backend)
		w.WriteHeader(resp.StatusCode)
		res.Committed = true

		n, err := d.relay(w, flush, resp.Body, streaming, dl.touch)
		res.Bytes = n
		return attemptError(ctx, err, dl, backend, url, started)

	case streaming:
		codec, err := d.translator.Codec(req.Dialect)
		if err != nil {
			return err
		}
		h := w.Header()
		copyResponseHeaders(h, resp.Header, true, true)
		h.Set(constants.ContentTypeHeader, codec.StreamContentType())
		h.Set("Cache-Control", "no-cache")
		SetResponseHeaders(h, req.RequestID, backend)
		w.WriteHeader(http.StatusOK)
		res.Committed = true

		cw := &countingWriter{w: w}
		err = d.translator.TranslateStream(attemptCtx, backend.Dialect, req.Dialect, req.Kind,
			&touchReader{r: resp.Body, touch: dl.touch}, cw, flush)
		res.Bytes = cw.n
		d.recordTransformError(err)
		return attemptError(ctx, err, dl, backend, url, started)

	default:
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTranslatedBodyBytes))
		if err != nil {
			return attemptError(ctx, err, dl, backend, url, started)
		}
		out, err := d.translator.TranslateResponse(backend.Dialect, req.Dialect, raw)
		if err != nil {
			d.recordTransformError(err)
			return err
		}
		h := w.Header()
		copyResponseHeaders(h, resp.Header, true, false)
		h.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
		SetResponseHeaders(h, req.RequestID, backend)
		w.WriteHeader(resp.StatusCode)
		res.Committed = true

		n, err := w.Write(out)
		res.Bytes = int64(n)
		return err
	}
}

// bindSticky pins the key to the backend that served it, unless it was
// already served through the existing binding.
func (d *Dispatcher) bindSticky(ctx context.Context, req *ports.DispatchRequest, sel ports.Selection, index int, backend *domain.Backend, rlog logger.StyledLogger) {
	if d.affinity == nil || req.StickyKey == "" || !req.Frontend.StickySessions {
		return
	}
	if sel.Sticky && index == 0 {
		return
	}
	if err := d.affinity.Bind(ctx, req.Frontend, req.StickyKey, backend.ID); err != nil {
		rlog.Warn("Failed to bind sticky session", "frontend", req.Frontend.ID, "backend", backend.ID, "error", err)
		return
	}
	rlog.Debug("Sticky session bound", "frontend", req.Frontend.ID, "backend", backend.ID)
}

func (d *Dispatcher) recordTransformError(err error) {
	var te *domain.TransformationError
	if errors.As(err, &te) {
		d.metrics.RecordTransformationError(te.Source, te.Target, te.Stage)
	}
}
