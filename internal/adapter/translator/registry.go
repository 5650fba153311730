package translator

import (
	"fmt"
	"slices"
	"sync"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/logger"
)

// Registry maps a dialect to its codec. Translation between two dialects
// is a lookup of both codecs, never a trial of each implementation.
type Registry struct {
	codecs map[domain.Dialect]Codec
	logger logger.StyledLogger
	mu     sync.RWMutex
}

func NewRegistry(log logger.StyledLogger) *Registry {
	return &Registry{
		codecs: make(map[domain.Dialect]Codec),
		logger: log,
	}
}

// NewDefaultRegistry has the ollama and openai codecs registered.
func NewDefaultRegistry(log logger.StyledLogger) *Registry {
	r := NewRegistry(log)
	r.Register(NewOllamaCodec())
	r.Register(NewOpenAICodec())
	return r
}

func (r *Registry) Register(codec Codec) {
	if codec == nil {
		r.logger.Error("Attempted to register nil codec, ignoring")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.codecs[codec.Dialect()]; exists {
		r.logger.Warn("Overwriting existing codec",
			"dialect", codec.Dialect(),
			"old", fmt.Sprintf("%T", existing),
			"new", fmt.Sprintf("%T", codec))
	}
	r.codecs[codec.Dialect()] = codec
	r.logger.Debug("Registered codec", "dialect", codec.Dialect(), "type", fmt.Sprintf("%T", codec))
}

func (r *Registry) Codec(dialect domain.Dialect) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.codecs[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: no codec for dialect %q (available: %v)", domain.ErrUnsupportedOperation, dialect, r.dialectsLocked())
	}
	return codec, nil
}

// CanHandle is the capability predicate for a dialect and request kind.
func (r *Registry) CanHandle(dialect domain.Dialect, kind domain.RequestKind) bool {
	codec, err := r.Codec(dialect)
	return err == nil && codec.CanHandle(kind)
}

func (r *Registry) Dialects() []domain.Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dialectsLocked()
}

func (r *Registry) dialectsLocked() []domain.Dialect {
	out := make([]domain.Dialect, 0, len(r.codecs))
	for d := range r.codecs {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// ToAgnostic parses a vendor response into the canonical form.
func (r *Registry) ToAgnostic(dialect domain.Dialect, raw []byte) (domain.AgnosticResponse, error) {
	codec, err := r.Codec(dialect)
	if err != nil {
		return nil, domain.NewTransformationError(dialect, "", StageSniff, "", raw, err)
	}
	return codec.ToAgnostic(raw)
}

// FromAgnostic renders the canonical form in the dialect's exact shape.
func (r *Registry) FromAgnostic(dialect domain.Dialect, resp domain.AgnosticResponse) ([]byte, error) {
	codec, err := r.Codec(dialect)
	if err != nil {
		return nil, domain.NewTransformationError("", dialect, StageEncodeResponse, string(resp.Kind()), nil, err)
	}
	return codec.FromAgnostic(resp)
}

// TranslateResponse converts a complete (non streamed) response body.
func (r *Registry) TranslateResponse(source, target domain.Dialect, raw []byte) ([]byte, error) {
	if source == target {
		return raw, nil
	}
	resp, err := r.ToAgnostic(source, raw)
	if err != nil {
		return nil, withTarget(err, target)
	}
	out, err := r.FromAgnostic(target, resp)
	if err != nil {
		return nil, withSource(err, source)
	}
	return out, nil
}

// TranslateRequest converts a client request body into the upstream call
// for a backend speaking target.
func (r *Registry) TranslateRequest(source, target domain.Dialect, kind domain.RequestKind, raw []byte) (Upstream, error) {
	src, err := r.Codec(source)
	if err != nil {
		return Upstream{}, domain.NewTransformationError(source, target, StageDecodeRequest, kind.String(), raw, err)
	}
	tgt, err := r.Codec(target)
	if err != nil {
		return Upstream{}, domain.NewTransformationError(source, target, StageEncodeRequest, kind.String(), raw, err)
	}
	if !tgt.CanHandle(kind) {
		return Upstream{}, domain.NewTransformationError(source, target, StageEncodeRequest, kind.String(), raw,
			fmt.Errorf("%w: %s backends have no %s operation", domain.ErrUnsupportedOperation, target, kind))
	}

	req, err := src.DecodeRequest(kind, raw)
	if err != nil {
		return Upstream{}, withTarget(err, target)
	}
	up, err := tgt.EncodeRequest(req)
	if err != nil {
		return Upstream{}, withSource(err, source)
	}
	return up, nil
}

func withTarget(err error, target domain.Dialect) error {
	if te, ok := err.(*domain.TransformationError); ok && te.Target == "" {
		te.Target = target
	}
	return err
}

func withSource(err error, source domain.Dialect) error {
	if te, ok := err.(*domain.TransformationError); ok && te.Source == "" {
		te.Source = source
	}
	return err
}
