package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

const (
	openAIObjectChat       = "chat.completion"
	openAIObjectChatChunk  = "chat.completion.chunk"
	openAIObjectCompletion = "text_completion"
	openAIObjectEmbedding  = "embedding"
	openAIObjectModel      = "model"
	openAIObjectList       = "list"

	defaultOwnedBy = "library"
)

type OpenAICodec struct {
	rules []sniffRule
}

var _ Codec = (*OpenAICodec)(nil)

func NewOpenAICodec() *OpenAICodec {
	c := &OpenAICodec{}
	c.rules = []sniffRule{
		{kind: domain.ResponseChat, match: func(d gjson.Result) bool {
			return d.Get("object").String() == openAIObjectChat || has(d, "choices.0.message")
		}, parse: c.parseChat},
		{kind: domain.ResponseCompletion, match: func(d gjson.Result) bool {
			return d.Get("object").String() == openAIObjectCompletion || has(d, "choices.0.text")
		}, parse: c.parseCompletion},
		{kind: domain.ResponseEmbedding, match: func(d gjson.Result) bool {
			return d.Get("data.0.object").String() == openAIObjectEmbedding || has(d, "data.0.embedding")
		}, parse: c.parseEmbedding},
		{kind: domain.ResponseModelList, match: func(d gjson.Result) bool {
			return d.Get("object").String() == openAIObjectList || d.Get("data").IsArray()
		}, parse: c.parseModelList},
	}
	return c
}

func (c *OpenAICodec) Dialect() domain.Dialect { return domain.DialectOpenAI }

// CanHandle is false for the ollama-only model management calls.
func (c *OpenAICodec) CanHandle(kind domain.RequestKind) bool {
	return kind.IsInference() || kind == domain.KindModels
}

func (c *OpenAICodec) StreamContentType() string { return constants.ContentTypeSSE }

func (c *OpenAICodec) ToAgnostic(raw []byte) (domain.AgnosticResponse, error) {
	rule, doc, err := sniff(c.rules, raw)
	if err != nil {
		return nil, domain.NewTransformationError(domain.DialectOpenAI, "", StageSniff, "", raw, err)
	}
	resp, err := rule.parse(doc)
	if err != nil {
		return nil, domain.NewTransformationError(domain.DialectOpenAI, "", StageDecodeResponse, string(rule.kind), raw, err)
	}
	return resp, nil
}

func (c *OpenAICodec) parseChat(d gjson.Result) (domain.AgnosticResponse, error) {
	choices, err := openAIChoices(d.Get("choices"), true)
	if err != nil {
		return nil, err
	}
	return &domain.ChatResponse{
		Created: unixTime(d.Get("created").Int()),
		ID:      d.Get("id").String(),
		Model:   d.Get("model").String(),
		Choices: choices,
		Usage:   openAIUsage(d.Get("usage")),
		Done:    true,
	}, nil
}

func (c *OpenAICodec) parseCompletion(d gjson.Result) (domain.AgnosticResponse, error) {
	choices, err := openAIChoices(d.Get("choices"), false)
	if err != nil {
		return nil, err
	}
	return &domain.CompletionResponse{
		Created: unixTime(d.Get("created").Int()),
		ID:      d.Get("id").String(),
		Model:   d.Get("model").String(),
		Choices: choices,
		Usage:   openAIUsage(d.Get("usage")),
		Done:    true,
	}, nil
}

func (c *OpenAICodec) parseEmbedding(d gjson.Result) (domain.AgnosticResponse, error) {
	data := d.Get("data").Array()
	vectors := make([][]float64, 0, len(data))
	for _, item := range data {
		vec, err := parseVector(item.Get("embedding"))
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return &domain.EmbeddingResponse{
		Model:      d.Get("model").String(),
		Embeddings: domain.Many(vectors),
		Usage:      openAIUsage(d.Get("usage")),
	}, nil
}

func (c *OpenAICodec) parseModelList(d gjson.Result) (domain.AgnosticResponse, error) {
	data := d.Get("data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: data must be an array", domain.ErrMalformedPayload)
	}
	out := &domain.ModelListResponse{Models: make([]domain.ModelEntry, 0, len(data.Array()))}
	for _, m := range data.Array() {
		out.Models = append(out.Models, domain.ModelEntry{
			Name:       m.Get("id").String(),
			OwnedBy:    m.Get("owned_by").String(),
			ModifiedAt: unixTime(m.Get("created").Int()),
		})
	}
	return out, nil
}

func openAIChoices(v gjson.Result, chat bool) ([]domain.Choice, error) {
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: choices must be an array", domain.ErrMalformedPayload)
	}
	items := v.Array()
	choices := make([]domain.Choice, 0, len(items))
	for i, ch := range items {
		choice := domain.Choice{
			Index:        i,
			FinishReason: ch.Get("finish_reason").String(),
		}
		if idx := ch.Get("index"); idx.Exists() {
			choice.Index = int(idx.Int())
		}
		if chat {
			choice.Message = &domain.Message{
				Role:    ch.Get("message.role").String(),
				Content: messageContent(ch.Get("message.content")),
			}
		} else {
			choice.Text = ch.Get("text").String()
		}
		choices = append(choices, choice)
	}
	return choices, nil
}

// messageContent flattens the text parts of an array content field.
func messageContent(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var sb strings.Builder
	for _, part := range v.Array() {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
	}
	return sb.String()
}

func openAIUsage(u gjson.Result) domain.Usage {
	return domain.Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
	}.Normalise()
}

type openAIMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type openAIChoice struct {
	Message      *openAIMessage `json:"message,omitempty"`
	Delta        *openAIMessage `json:"delta,omitempty"`
	Text         *string        `json:"text,omitempty"`
	FinishReason *string        `json:"finish_reason"`
	Index        int            `json:"index"`
}

type openAIUsageBody struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAICompletion struct {
	Usage   *openAIUsageBody `json:"usage,omitempty"`
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Model   string           `json:"model"`
	Choices []openAIChoice   `json:"choices"`
	Created int64            `json:"created"`
}

type openAIEmbeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type openAIEmbeddings struct {
	Object string                `json:"object"`
	Model  string                `json:"model"`
	Data   []openAIEmbeddingItem `json:"data"`
	Usage  openAIEmbeddingUsage  `json:"usage"`
}

type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

func (c *OpenAICodec) FromAgnostic(resp domain.AgnosticResponse) ([]byte, error) {
	var payload any
	switch r := resp.(type) {
	case *domain.CompletionResponse:
		payload = openAICompletion{
			ID:      idOr(r.ID, "cmpl-"),
			Object:  openAIObjectCompletion,
			Created: unixSeconds(r.Created),
			Model:   r.Model,
			Choices: encodeChoices(r.Choices, false),
			Usage:   usageBody(r.Usage),
		}
	case *domain.ChatResponse:
		payload = openAICompletion{
			ID:      idOr(r.ID, "chatcmpl-"),
			Object:  openAIObjectChat,
			Created: unixSeconds(r.Created),
			Model:   r.Model,
			Choices: encodeChoices(r.Choices, true),
			Usage:   usageBody(r.Usage),
		}
	case *domain.EmbeddingResponse:
		items := r.Embeddings.Items()
		body := openAIEmbeddings{
			Object: openAIObjectList,
			Model:  r.Model,
			Data:   make([]openAIEmbeddingItem, 0, len(items)),
			Usage:  openAIEmbeddingUsage{PromptTokens: r.Usage.PromptTokens, TotalTokens: r.Usage.Normalise().TotalTokens},
		}
		for i, vec := range items {
			body.Data = append(body.Data, openAIEmbeddingItem{Object: openAIObjectEmbedding, Embedding: vec, Index: i})
		}
		payload = body
	case *domain.ModelListResponse:
		list := openAIModelList{Object: openAIObjectList, Data: make([]openAIModel, 0, len(r.Models))}
		for _, m := range r.Models {
			owner := m.OwnedBy
			if owner == "" {
				owner = defaultOwnedBy
			}
			list.Data = append(list.Data, openAIModel{ID: m.Name, Object: openAIObjectModel, OwnedBy: owner, Created: unixSeconds(m.ModifiedAt)})
		}
		payload = list
	case *domain.ModelInfoResponse:
		return nil, domain.NewTransformationError("", domain.DialectOpenAI, StageEncodeResponse, string(r.Kind()), nil,
			fmt.Errorf("%w: model info has no openai equivalent", domain.ErrUnsupportedOperation))
	default:
		return nil, domain.NewTransformationError("", domain.DialectOpenAI, StageEncodeResponse, fmt.Sprintf("%T", resp), nil,
			fmt.Errorf("%w: unknown response variant", domain.ErrUnsupportedOperation))
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewTransformationError("", domain.DialectOpenAI, StageEncodeResponse, string(resp.Kind()), nil, err)
	}
	return out, nil
}

func encodeChoices(choices []domain.Choice, chat bool) []openAIChoice {
	out := make([]openAIChoice, 0, len(choices))
	for _, ch := range choices {
		oc := openAIChoice{Index: ch.Index, FinishReason: finishReason(ch.FinishReason)}
		if chat {
			msg := &openAIMessage{Role: "assistant"}
			if ch.Message != nil {
				msg.Content = ch.Message.Content
				if ch.Message.Role != "" {
					msg.Role = ch.Message.Role
				}
			}
			oc.Message = msg
		} else {
			text := ch.Text
			oc.Text = &text
		}
		out = append(out, oc)
	}
	return out
}

func usageBody(u domain.Usage) *openAIUsageBody {
	u = u.Normalise()
	return &openAIUsageBody{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

func (c *OpenAICodec) DecodeRequest(kind domain.RequestKind, raw []byte) (*domain.AgnosticRequest, error) {
	fail := func(err error) (*domain.AgnosticRequest, error) {
		return nil, domain.NewTransformationError(domain.DialectOpenAI, "", StageDecodeRequest, kind.String(), raw, err)
	}

	if kind == domain.KindModels {
		return &domain.AgnosticRequest{Kind: kind}, nil
	}
	if !c.CanHandle(kind) {
		return fail(fmt.Errorf("%w: openai has no %s request", domain.ErrUnsupportedOperation, kind))
	}
	if !gjson.ValidBytes(raw) {
		return fail(fmt.Errorf("%w: request body is not valid JSON", domain.ErrMalformedPayload))
	}

	d := gjson.ParseBytes(raw)
	req := &domain.AgnosticRequest{
		Kind:   kind,
		Model:  d.Get("model").String(),
		Stream: d.Get("stream").Bool(),
	}
	req.Options = openAIOptions(d)
	if kind != domain.KindEmbeddings {
		if f := lossyField(d, "tools", "functions"); f != "" {
			return fail(untranslatable(f))
		}
		if lp := d.Get("logprobs"); lp.Type == gjson.True || lp.Int() > 0 {
			return fail(untranslatable("logprobs"))
		}
		if rf := d.Get("response_format.type"); rf.Exists() && rf.String() != "text" {
			return fail(untranslatable("response_format"))
		}
		if d.Get("n").Int() > 1 {
			return fail(untranslatable("n"))
		}
	}

	switch kind {
	case domain.KindCompletions:
		prompt, err := parseStringOrList(d.Get("prompt"))
		if err != nil {
			return fail(err)
		}
		if prompt.Len() > 1 {
			return fail(fmt.Errorf("%w: batched prompts cannot be forwarded to ollama", domain.ErrUnsupportedOperation))
		}
		req.Prompt, _ = prompt.First()
	case domain.KindChat:
		msgs := d.Get("messages")
		if !msgs.IsArray() {
			return fail(fmt.Errorf("%w: messages must be an array", domain.ErrMalformedPayload))
		}
		for _, m := range msgs.Array() {
			if content := m.Get("content"); content.IsArray() {
				for _, part := range content.Array() {
					if t := part.Get("type").String(); t != "text" {
						return fail(untranslatable("messages.content." + t))
					}
				}
			}
			req.Messages = append(req.Messages, domain.Message{Role: m.Get("role").String(), Content: messageContent(m.Get("content"))})
		}
	case domain.KindEmbeddings:
		req.Stream = false
		if ef := d.Get("encoding_format"); ef.Exists() && ef.String() != "float" {
			return fail(untranslatable("encoding_format"))
		}
		in, err := parseStringOrList(d.Get("input"))
		if err != nil {
			return fail(err)
		}
		req.Input = in
	}
	return req, nil
}

func openAIOptions(d gjson.Result) domain.GenerationOptions {
	var opts domain.GenerationOptions
	if v := d.Get("temperature"); v.Exists() {
		f := v.Float()
		opts.Temperature = &f
	}
	if v := d.Get("top_p"); v.Exists() {
		f := v.Float()
		opts.TopP = &f
	}
	limit := d.Get("max_tokens")
	if !limit.Exists() {
		limit = d.Get("max_completion_tokens")
	}
	if limit.Exists() {
		n := int(limit.Int())
		opts.MaxTokens = &n
	}
	if v := d.Get("seed"); v.Exists() {
		n := int(v.Int())
		opts.Seed = &n
	}
	opts.Stop = stopList(d.Get("stop"))
	return opts
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIRequest struct {
	Temperature   *float64             `json:"temperature,omitempty"`
	TopP          *float64             `json:"top_p,omitempty"`
	MaxTokens     *int                 `json:"max_tokens,omitempty"`
	Seed          *int                 `json:"seed,omitempty"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
	Prompt        *string              `json:"prompt,omitempty"`
	Model         string               `json:"model"`
	Messages      []openAIMessage      `json:"messages,omitempty"`
	Stop          []string             `json:"stop,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
}

type openAIEmbeddingRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

func (c *OpenAICodec) EncodeRequest(req *domain.AgnosticRequest) (Upstream, error) {
	fail := func(err error) (Upstream, error) {
		return Upstream{}, domain.NewTransformationError("", domain.DialectOpenAI, StageEncodeRequest, req.Kind.String(), nil, err)
	}

	body := openAIRequest{
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		MaxTokens:   req.Options.MaxTokens,
		Seed:        req.Options.Seed,
		Stop:        req.Options.Stop,
		Model:       req.Model,
		Stream:      req.Stream,
	}
	if req.Stream {
		// usage is only sent on streams when asked for
		body.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}

	var (
		path    string
		payload any = &body
	)
	switch req.Kind {
	case domain.KindModels:
		return Upstream{Method: http.MethodGet, Path: constants.PathV1Models}, nil
	case domain.KindCompletions:
		prompt := req.Prompt
		if req.System != "" {
			prompt = req.System + "\n\n" + prompt
		}
		body.Prompt = &prompt
		path = constants.PathV1Completions
	case domain.KindChat:
		body.Messages = make([]openAIMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			body.Messages = append(body.Messages, openAIMessage(m))
		}
		path = constants.PathV1ChatCompletions
	case domain.KindEmbeddings:
		var input any = req.Input.Items()
		if !req.Input.IsMany() {
			input, _ = req.Input.First()
		}
		payload = openAIEmbeddingRequest{Model: req.Model, Input: input}
		path = constants.PathV1Embeddings
	default:
		return fail(fmt.Errorf("%w: openai backends have no %s operation", domain.ErrUnsupportedOperation, req.Kind))
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return fail(err)
	}
	return Upstream{Method: http.MethodPost, Path: path, Body: out}, nil
}

func (c *OpenAICodec) DecodeStreamLine(kind domain.RequestKind, line []byte) ([]domain.StreamChunk, bool, error) {
	line = bytes.TrimSpace(line)
	// blank separators, comments and event names carry nothing
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false, nil
	}
	data := bytes.TrimSpace(line[len("data:"):])
	if string(data) == constants.SSEDone {
		return nil, true, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, false, fmt.Errorf("%w: sse data is not valid JSON", domain.ErrMalformedPayload)
	}

	d := gjson.ParseBytes(data)
	if e := d.Get("error"); e.Exists() {
		return nil, true, fmt.Errorf("upstream stream error: %s", messageOrRaw(e))
	}

	base := domain.StreamChunk{
		Kind:    kind,
		ID:      d.Get("id").String(),
		Model:   d.Get("model").String(),
		Created: unixTime(d.Get("created").Int()),
	}

	var chunks []domain.StreamChunk
	for _, ch := range d.Get("choices").Array() {
		chunk := base
		chunk.FinishReason = ch.Get("finish_reason").String()
		chunk.Done = chunk.FinishReason != ""
		if kind == domain.KindChat {
			chunk.Role = ch.Get("delta.role").String()
			chunk.Content = messageContent(ch.Get("delta.content"))
		} else {
			chunk.Content = ch.Get("text").String()
		}
		chunks = append(chunks, chunk)
	}
	if u := d.Get("usage"); u.IsObject() {
		usage := openAIUsage(u)
		if n := len(chunks); n > 0 {
			chunks[n-1].Usage = &usage
		} else {
			chunk := base
			chunk.Usage = &usage
			chunks = append(chunks, chunk)
		}
	}
	return chunks, false, nil
}

func (c *OpenAICodec) EncodeStreamChunk(kind domain.RequestKind, chunk domain.StreamChunk) ([]byte, error) {
	frame := openAICompletion{
		ID:      chunk.ID,
		Object:  openAIObjectChatChunk,
		Created: unixSeconds(chunk.Created),
		Model:   chunk.Model,
	}
	choice := openAIChoice{}
	if chunk.Done {
		reason := chunk.FinishReason
		if reason == "" {
			reason = "stop"
		}
		choice.FinishReason = &reason
	}
	if kind == domain.KindChat {
		choice.Delta = &openAIMessage{Role: chunk.Role, Content: chunk.Content}
	} else {
		frame.Object = openAIObjectCompletion
		text := chunk.Content
		choice.Text = &text
	}
	frame.Choices = []openAIChoice{choice}
	if chunk.Usage != nil {
		frame.Usage = usageBody(*chunk.Usage)
	}

	out, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(out)+len(constants.SSEDataPrefix)+2)
	buf = append(buf, constants.SSEDataPrefix...)
	buf = append(buf, out...)
	return append(buf, '\n', '\n'), nil
}

func (c *OpenAICodec) EncodeStreamEnd() []byte {
	return []byte(constants.SSEDataPrefix + constants.SSEDone + "\n\n")
}

func messageOrRaw(e gjson.Result) string {
	if m := e.Get("message"); m.Exists() {
		return m.String()
	}
	return e.String()
}

func finishReason(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func idOr(id, prefix string) string {
	if id != "" {
		return id
	}
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
