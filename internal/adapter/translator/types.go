package translator

import (
	"github.com/thushan/flowgate/internal/core/domain"
)

// Stage names carried by TransformationError.
const (
	StageSniff          = "sniff"
	StageDecodeResponse = "decode_response"
	StageEncodeResponse = "encode_response"
	StageDecodeRequest  = "decode_request"
	StageEncodeRequest  = "encode_request"
	StageStream         = "stream"
)

// Upstream is where and how a translated request is sent.
type Upstream struct {
	Method string
	Path   string
	Body   []byte
}

// Codec reads and writes one dialect's wire JSON. Decoding goes to the
// agnostic form and encoding comes from it, so any pair of codecs can
// translate between each other.
type Codec interface {
	Dialect() domain.Dialect

	// ToAgnostic sniffs the variant from well known keys, in a fixed
	// priority order, and parses it.
	ToAgnostic(raw []byte) (domain.AgnosticResponse, error)
	FromAgnostic(resp domain.AgnosticResponse) ([]byte, error)

	DecodeRequest(kind domain.RequestKind, raw []byte) (*domain.AgnosticRequest, error)
	EncodeRequest(req *domain.AgnosticRequest) (Upstream, error)

	// CanHandle reports whether the dialect has an equivalent for the
	// request kind at all.
	CanHandle(kind domain.RequestKind) bool

	StreamCodec
}

// StreamCodec frames incremental output: NDJSON for ollama, SSE for
// openai.
type StreamCodec interface {
	StreamContentType() string
	// DecodeStreamLine parses one line of upstream output. end is true on
	// an explicit terminator.
	DecodeStreamLine(kind domain.RequestKind, line []byte) (chunks []domain.StreamChunk, end bool, err error)
	EncodeStreamChunk(kind domain.RequestKind, chunk domain.StreamChunk) ([]byte, error)
	EncodeStreamEnd() []byte
}
