package translator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

// ollama formats created_at as RFC3339 with milliseconds
const ollamaTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type OllamaCodec struct {
	rules []sniffRule
}

var _ Codec = (*OllamaCodec)(nil)

func NewOllamaCodec() *OllamaCodec {
	c := &OllamaCodec{}
	c.rules = []sniffRule{
		{kind: domain.ResponseChat, match: func(d gjson.Result) bool { return has(d, "message") }, parse: c.parseChat},
		{kind: domain.ResponseCompletion, match: func(d gjson.Result) bool { return has(d, "response") }, parse: c.parseCompletion},
		{kind: domain.ResponseEmbedding, match: func(d gjson.Result) bool { return has(d, "embedding") || has(d, "embeddings") }, parse: c.parseEmbedding},
		{kind: domain.ResponseModelList, match: func(d gjson.Result) bool { return has(d, "models") }, parse: c.parseModelList},
		{kind: domain.ResponseModelInfo, match: func(d gjson.Result) bool {
			return has(d, "modelfile") || has(d, "details") || has(d, "template") || has(d, "model_info")
		}, parse: c.parseModelInfo},
	}
	return c
}

func (c *OllamaCodec) Dialect() domain.Dialect { return domain.DialectOllama }

// CanHandle is true for every kind, ollama is the superset surface.
func (c *OllamaCodec) CanHandle(domain.RequestKind) bool { return true }

func (c *OllamaCodec) StreamContentType() string { return constants.ContentTypeNDJSON }

func (c *OllamaCodec) ToAgnostic(raw []byte) (domain.AgnosticResponse, error) {
	rule, doc, err := sniff(c.rules, raw)
	if err != nil {
		return nil, domain.NewTransformationError(domain.DialectOllama, "", StageSniff, "", raw, err)
	}
	resp, err := rule.parse(doc)
	if err != nil {
		return nil, domain.NewTransformationError(domain.DialectOllama, "", StageDecodeResponse, string(rule.kind), raw, err)
	}
	return resp, nil
}

func (c *OllamaCodec) parseChat(d gjson.Result) (domain.AgnosticResponse, error) {
	msg := d.Get("message")
	if !msg.IsObject() {
		return nil, fmt.Errorf("%w: message must be an object", domain.ErrMalformedPayload)
	}
	return &domain.ChatResponse{
		Created: parseOllamaTime(d.Get("created_at").String()),
		Model:   d.Get("model").String(),
		Choices: []domain.Choice{{
			Message:      &domain.Message{Role: msg.Get("role").String(), Content: msg.Get("content").String()},
			FinishReason: d.Get("done_reason").String(),
		}},
		Usage:   ollamaUsage(d),
		Timings: ollamaTimings(d),
		Done:    d.Get("done").Bool(),
	}, nil
}

func (c *OllamaCodec) parseCompletion(d gjson.Result) (domain.AgnosticResponse, error) {
	return &domain.CompletionResponse{
		Created: parseOllamaTime(d.Get("created_at").String()),
		Model:   d.Get("model").String(),
		Choices: []domain.Choice{{
			Text:         d.Get("response").String(),
			FinishReason: d.Get("done_reason").String(),
		}},
		Usage:   ollamaUsage(d),
		Timings: ollamaTimings(d),
		Done:    d.Get("done").Bool(),
	}, nil
}

func (c *OllamaCodec) parseEmbedding(d gjson.Result) (domain.AgnosticResponse, error) {
	resp := &domain.EmbeddingResponse{
		Model: d.Get("model").String(),
		Usage: domain.Usage{PromptTokens: int(d.Get("prompt_eval_count").Int())}.Normalise(),
	}
	if single := d.Get("embedding"); single.Exists() {
		vec, err := parseVector(single)
		if err != nil {
			return nil, err
		}
		resp.Embeddings = domain.Single(vec)
		return resp, nil
	}
	many := d.Get("embeddings")
	if !many.IsArray() {
		return nil, fmt.Errorf("%w: embeddings must be an array", domain.ErrMalformedPayload)
	}
	vectors := make([][]float64, 0, len(many.Array()))
	for _, v := range many.Array() {
		vec, err := parseVector(v)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	resp.Embeddings = domain.Many(vectors)
	return resp, nil
}

func (c *OllamaCodec) parseModelList(d gjson.Result) (domain.AgnosticResponse, error) {
	models := d.Get("models")
	if !models.IsArray() {
		return nil, fmt.Errorf("%w: models must be an array", domain.ErrMalformedPayload)
	}
	out := &domain.ModelListResponse{Models: make([]domain.ModelEntry, 0, len(models.Array()))}
	for _, m := range models.Array() {
		name := m.Get("name").String()
		if name == "" {
			name = m.Get("model").String()
		}
		entry := domain.ModelEntry{
			Name:       name,
			Digest:     m.Get("digest").String(),
			Size:       m.Get("size").Int(),
			ModifiedAt: parseOllamaTime(m.Get("modified_at").String()),
		}
		if details, ok := m.Get("details").Value().(map[string]any); ok {
			entry.Details = details
		}
		out.Models = append(out.Models, entry)
	}
	return out, nil
}

func (c *OllamaCodec) parseModelInfo(d gjson.Result) (domain.AgnosticResponse, error) {
	info := &domain.ModelInfoResponse{
		Model:      d.Get("model").String(),
		Modelfile:  d.Get("modelfile").String(),
		Parameters: d.Get("parameters").String(),
		Template:   d.Get("template").String(),
	}
	if details, ok := d.Get("details").Value().(map[string]any); ok {
		info.Details = details
	}
	if mi, ok := d.Get("model_info").Value().(map[string]any); ok {
		info.ModelInfo = mi
	}
	return info, nil
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaCounters struct {
	DoneReason         string `json:"done_reason,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`
	LoadDuration       int64  `json:"load_duration,omitempty"`
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
	EvalCount          int    `json:"eval_count,omitempty"`
	EvalDuration       int64  `json:"eval_duration,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	ollamaCounters
}

type ollamaChatResponse struct {
	Message   ollamaMessage `json:"message"`
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Done      bool          `json:"done"`
	ollamaCounters
}

type ollamaSingleEmbedding struct {
	Model     string    `json:"model,omitempty"`
	Embedding []float64 `json:"embedding"`
}

type ollamaEmbeddings struct {
	Model           string      `json:"model,omitempty"`
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
}

type ollamaModel struct {
	Details    map[string]any `json:"details,omitempty"`
	Name       string         `json:"name"`
	Model      string         `json:"model"`
	ModifiedAt string         `json:"modified_at,omitempty"`
	Digest     string         `json:"digest,omitempty"`
	Size       int64          `json:"size"`
}

type ollamaTags struct {
	Models []ollamaModel `json:"models"`
}

type ollamaShow struct {
	Details    map[string]any `json:"details,omitempty"`
	ModelInfo  map[string]any `json:"model_info,omitempty"`
	Modelfile  string         `json:"modelfile,omitempty"`
	Parameters string         `json:"parameters,omitempty"`
	Template   string         `json:"template,omitempty"`
}

func (c *OllamaCodec) FromAgnostic(resp domain.AgnosticResponse) ([]byte, error) {
	var payload any
	switch r := resp.(type) {
	case *domain.CompletionResponse:
		payload = ollamaGenerateResponse{
			Model:          r.Model,
			CreatedAt:      formatOllamaTime(r.Created),
			Response:       domain.FirstText(r.Choices),
			Done:           r.Done,
			ollamaCounters: counters(r.Usage, r.Timings, domain.FirstFinishReason(r.Choices)),
		}
	case *domain.ChatResponse:
		role := "assistant"
		if len(r.Choices) > 0 && r.Choices[0].Message != nil && r.Choices[0].Message.Role != "" {
			role = r.Choices[0].Message.Role
		}
		payload = ollamaChatResponse{
			Model:          r.Model,
			CreatedAt:      formatOllamaTime(r.Created),
			Message:        ollamaMessage{Role: role, Content: domain.FirstText(r.Choices)},
			Done:           r.Done,
			ollamaCounters: counters(r.Usage, r.Timings, domain.FirstFinishReason(r.Choices)),
		}
	case *domain.EmbeddingResponse:
		vectors := r.Embeddings.Normalised()
		if !vectors.IsMany() {
			vec, _ := vectors.First()
			payload = ollamaSingleEmbedding{Model: r.Model, Embedding: vec}
		} else {
			payload = ollamaEmbeddings{Model: r.Model, Embeddings: vectors.Items(), PromptEvalCount: r.Usage.PromptTokens}
		}
	case *domain.ModelListResponse:
		tags := ollamaTags{Models: make([]ollamaModel, 0, len(r.Models))}
		for _, m := range r.Models {
			om := ollamaModel{Name: m.Name, Model: m.Name, Digest: m.Digest, Size: m.Size, Details: m.Details}
			if !m.ModifiedAt.IsZero() {
				om.ModifiedAt = formatOllamaTime(m.ModifiedAt)
			}
			tags.Models = append(tags.Models, om)
		}
		payload = tags
	case *domain.ModelInfoResponse:
		payload = ollamaShow{
			Details:    r.Details,
			ModelInfo:  r.ModelInfo,
			Modelfile:  r.Modelfile,
			Parameters: r.Parameters,
			Template:   r.Template,
		}
	default:
		return nil, domain.NewTransformationError("", domain.DialectOllama, StageEncodeResponse, fmt.Sprintf("%T", resp), nil,
			fmt.Errorf("%w: unknown response variant", domain.ErrUnsupportedOperation))
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewTransformationError("", domain.DialectOllama, StageEncodeResponse, string(resp.Kind()), nil, err)
	}
	return out, nil
}

func (c *OllamaCodec) DecodeRequest(kind domain.RequestKind, raw []byte) (*domain.AgnosticRequest, error) {
	fail := func(err error) (*domain.AgnosticRequest, error) {
		return nil, domain.NewTransformationError(domain.DialectOllama, "", StageDecodeRequest, kind.String(), raw, err)
	}

	if kind == domain.KindModels {
		return &domain.AgnosticRequest{Kind: kind}, nil
	}
	if !kind.IsInference() {
		return fail(fmt.Errorf("%w: %s requests are only served by ollama backends", domain.ErrUnsupportedOperation, kind))
	}
	if !gjson.ValidBytes(raw) {
		return fail(fmt.Errorf("%w: request body is not valid JSON", domain.ErrMalformedPayload))
	}

	d := gjson.ParseBytes(raw)
	req := &domain.AgnosticRequest{
		Kind:   kind,
		Model:  d.Get("model").String(),
		Stream: true,
	}
	if s := d.Get("stream"); s.Exists() {
		req.Stream = s.Bool()
	}
	req.Options = ollamaOptions(d.Get("options"))
	if kind != domain.KindEmbeddings {
		if f := lossyField(d, "format", "tools", "images"); f != "" {
			return fail(untranslatable(f))
		}
	}

	switch kind {
	case domain.KindCompletions:
		req.Prompt = d.Get("prompt").String()
		req.System = d.Get("system").String()
	case domain.KindChat:
		msgs := d.Get("messages")
		if !msgs.IsArray() {
			return fail(fmt.Errorf("%w: messages must be an array", domain.ErrMalformedPayload))
		}
		for _, m := range msgs.Array() {
			if hasValue(m.Get("images")) {
				return fail(untranslatable("messages.images"))
			}
			req.Messages = append(req.Messages, domain.Message{Role: m.Get("role").String(), Content: m.Get("content").String()})
		}
	case domain.KindEmbeddings:
		req.Stream = false
		input := d.Get("input")
		if !input.Exists() {
			input = d.Get("prompt")
		}
		in, err := parseStringOrList(input)
		if err != nil {
			return fail(err)
		}
		req.Input = in
	}
	return req, nil
}

type ollamaOptionsBody struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateRequest struct {
	Options *ollamaOptionsBody `json:"options,omitempty"`
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	System  string             `json:"system,omitempty"`
	Stream  bool               `json:"stream"`
}

type ollamaChatRequest struct {
	Options  *ollamaOptionsBody `json:"options,omitempty"`
	Model    string             `json:"model"`
	Messages []ollamaMessage    `json:"messages"`
	Stream   bool               `json:"stream"`
}

type ollamaEmbedRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

func (c *OllamaCodec) EncodeRequest(req *domain.AgnosticRequest) (Upstream, error) {
	fail := func(err error) (Upstream, error) {
		return Upstream{}, domain.NewTransformationError("", domain.DialectOllama, StageEncodeRequest, req.Kind.String(), nil, err)
	}

	var (
		path    string
		payload any
	)
	switch req.Kind {
	case domain.KindModels:
		return Upstream{Method: http.MethodGet, Path: constants.PathOllamaTags}, nil
	case domain.KindCompletions:
		path = constants.PathOllamaGenerate
		payload = ollamaGenerateRequest{
			Options: encodeOllamaOptions(req.Options),
			Model:   req.Model,
			Prompt:  req.Prompt,
			System:  req.System,
			Stream:  req.Stream,
		}
	case domain.KindChat:
		msgs := make([]ollamaMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			msgs = append(msgs, ollamaMessage(m))
		}
		path = constants.PathOllamaChat
		payload = ollamaChatRequest{
			Options:  encodeOllamaOptions(req.Options),
			Model:    req.Model,
			Messages: msgs,
			Stream:   req.Stream,
		}
	case domain.KindEmbeddings:
		// /api/embed accepts both a string and a list, and always answers
		// with the embeddings list
		var input any = req.Input.Items()
		if !req.Input.IsMany() {
			input, _ = req.Input.First()
		}
		path = constants.PathOllamaEmbed
		payload = ollamaEmbedRequest{Model: req.Model, Input: input}
	default:
		return fail(fmt.Errorf("%w: cannot encode %s request", domain.ErrUnsupportedOperation, req.Kind))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fail(err)
	}
	return Upstream{Method: http.MethodPost, Path: path, Body: body}, nil
}

func (c *OllamaCodec) DecodeStreamLine(kind domain.RequestKind, line []byte) ([]domain.StreamChunk, bool, error) {
	if len(line) == 0 {
		return nil, false, nil
	}
	if !gjson.ValidBytes(line) {
		return nil, false, fmt.Errorf("%w: stream line is not valid JSON", domain.ErrMalformedPayload)
	}
	d := gjson.ParseBytes(line)
	if e := d.Get("error"); e.Exists() {
		return nil, true, fmt.Errorf("upstream stream error: %s", e.String())
	}

	chunk := domain.StreamChunk{
		Kind:         kind,
		Model:        d.Get("model").String(),
		Created:      parseOllamaTime(d.Get("created_at").String()),
		Done:         d.Get("done").Bool(),
		FinishReason: d.Get("done_reason").String(),
	}
	if kind == domain.KindChat {
		chunk.Role = d.Get("message.role").String()
		chunk.Content = d.Get("message.content").String()
	} else {
		chunk.Content = d.Get("response").String()
	}
	if chunk.Done {
		usage := ollamaUsage(d)
		chunk.Usage = &usage
	}
	return []domain.StreamChunk{chunk}, false, nil
}

func (c *OllamaCodec) EncodeStreamChunk(kind domain.RequestKind, chunk domain.StreamChunk) ([]byte, error) {
	var fc ollamaCounters
	if chunk.Done {
		fc.DoneReason = chunk.FinishReason
		if fc.DoneReason == "" {
			fc.DoneReason = "stop"
		}
		if chunk.Usage != nil {
			fc.PromptEvalCount = chunk.Usage.PromptTokens
			fc.EvalCount = chunk.Usage.CompletionTokens
		}
	}

	var payload any
	if kind == domain.KindChat {
		role := chunk.Role
		if role == "" {
			role = "assistant"
		}
		payload = ollamaChatResponse{
			Model:          chunk.Model,
			CreatedAt:      formatOllamaTime(chunk.Created),
			Message:        ollamaMessage{Role: role, Content: chunk.Content},
			Done:           chunk.Done,
			ollamaCounters: fc,
		}
	} else {
		payload = ollamaGenerateResponse{
			Model:          chunk.Model,
			CreatedAt:      formatOllamaTime(chunk.Created),
			Response:       chunk.Content,
			Done:           chunk.Done,
			ollamaCounters: fc,
		}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// EncodeStreamEnd is empty, the done:true line ends an ollama stream.
func (c *OllamaCodec) EncodeStreamEnd() []byte { return nil }

func ollamaUsage(d gjson.Result) domain.Usage {
	return domain.Usage{
		PromptTokens:     int(d.Get("prompt_eval_count").Int()),
		CompletionTokens: int(d.Get("eval_count").Int()),
	}.Normalise()
}

func ollamaTimings(d gjson.Result) domain.Timings {
	return domain.Timings{
		TotalDuration:      time.Duration(d.Get("total_duration").Int()),
		LoadDuration:       time.Duration(d.Get("load_duration").Int()),
		PromptEvalDuration: time.Duration(d.Get("prompt_eval_duration").Int()),
		EvalDuration:       time.Duration(d.Get("eval_duration").Int()),
	}
}

func counters(u domain.Usage, t domain.Timings, finish string) ollamaCounters {
	return ollamaCounters{
		DoneReason:         finish,
		TotalDuration:      int64(t.TotalDuration),
		LoadDuration:       int64(t.LoadDuration),
		PromptEvalCount:    u.PromptTokens,
		PromptEvalDuration: int64(t.PromptEvalDuration),
		EvalCount:          u.CompletionTokens,
		EvalDuration:       int64(t.EvalDuration),
	}
}

func ollamaOptions(o gjson.Result) domain.GenerationOptions {
	var opts domain.GenerationOptions
	if !o.IsObject() {
		return opts
	}
	if v := o.Get("temperature"); v.Exists() {
		f := v.Float()
		opts.Temperature = &f
	}
	if v := o.Get("top_p"); v.Exists() {
		f := v.Float()
		opts.TopP = &f
	}
	if v := o.Get("num_predict"); v.Exists() {
		n := int(v.Int())
		opts.MaxTokens = &n
	}
	if v := o.Get("seed"); v.Exists() {
		n := int(v.Int())
		opts.Seed = &n
	}
	opts.Stop = stopList(o.Get("stop"))
	return opts
}

func encodeOllamaOptions(o domain.GenerationOptions) *ollamaOptionsBody {
	if o.Temperature == nil && o.TopP == nil && o.MaxTokens == nil && o.Seed == nil && len(o.Stop) == 0 {
		return nil
	}
	return &ollamaOptionsBody{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		NumPredict:  o.MaxTokens,
		Seed:        o.Seed,
		Stop:        o.Stop,
	}
}

func parseOllamaTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatOllamaTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(ollamaTimeLayout)
}
