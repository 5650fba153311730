package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

// deadline cancels an attempt once the frontend timeout elapses. Streamed
// responses push it back on every chunk, so there it bounds the gap between
// tokens; a buffered response has to arrive in full before it fires.
type deadline struct {
	timer   *time.Timer
	timeout time.Duration
	expired atomic.Bool
}

func startDeadline(timeout time.Duration, cancel context.CancelFunc) *deadline {
	d := &deadline{timeout: timeout}
	d.timer = time.AfterFunc(timeout, func() {
		d.expired.Store(true)
		cancel()
	})
	return d
}

func (d *deadline) touch() {
	if !d.expired.Load() {
		d.timer.Reset(d.timeout)
	}
}

func (d *deadline) stop() {
	d.timer.Stop()
}

type touchReader struct {
	r     io.Reader
	touch func()
}

func (t *touchReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.touch()
	}
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func flusherFor(w http.ResponseWriter) func() error {
	rc := http.NewResponseController(w)
	return func() error {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
}

// relay copies the upstream body to the client as it arrives. Streams are
// flushed after every read so tokens reach the client without waiting for
// the server's write buffer to fill.
func (d *Dispatcher) relay(w io.Writer, flush func() error, body io.Reader, streaming bool, touch func()) (int64, error) {
	bufp := d.buffers.Get()
	defer d.buffers.Put(bufp)
	buf := *bufp

	var total int64
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if streaming {
				touch()
			}
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
			if streaming {
				if ferr := flush(); ferr != nil {
					return total, ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

var streamingContentTypes = []string{
	constants.ContentTypeSSE,
	constants.ContentTypeNDJSON,
	"application/stream+json",
	"application/json-seq",
}

// isStreamingResponse trusts the upstream content type first, then what
// the client asked for when the backend sends something generic.
func isStreamingResponse(resp *http.Response, requested bool) bool {
	ct := strings.ToLower(resp.Header.Get(constants.ContentTypeHeader))
	for _, st := range streamingContentTypes {
		if strings.Contains(ct, st) {
			return true
		}
	}
	return requested && !strings.Contains(ct, constants.ContentTypeJSON)
}

// attemptError turns a failure while reading the upstream into the error
// taxonomy: an expired deadline is a timeout, a cancelled client is passed
// through untouched.
func attemptError(ctx context.Context, err error, dl *deadline, backend *domain.Backend, url string, started time.Time) error {
	if err == nil {
		return nil
	}
	if dl.expired.Load() {
		return &domain.UpstreamTimeoutError{BackendID: backend.ID, Timeout: dl.timeout}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var te *domain.TransformationError
	if errors.As(err, &te) {
		return err
	}
	return &domain.UpstreamError{Err: err, BackendID: backend.ID, URL: url, Latency: time.Since(started)}
}
