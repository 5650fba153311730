package translator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

type flushCounter struct {
	n int
}

func (f *flushCounter) flush() error {
	f.n++
	return nil
}

func ndjson(lines ...string) io.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func sse(frames ...string) io.Reader {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: ")
		b.WriteString(f)
		b.WriteString("\n\n")
	}
	return strings.NewReader(b.String())
}

func sseFrames(t *testing.T, out []byte) []string {
	t.Helper()
	var frames []string
	for _, f := range strings.Split(string(out), "\n\n") {
		if f == "" {
			continue
		}
		require.True(t, strings.HasPrefix(f, "data: "), "frame %q", f)
		frames = append(frames, strings.TrimPrefix(f, "data: "))
	}
	return frames
}

func TestTranslateStream_OllamaChatToOpenAI(t *testing.T) {
	t.Parallel()

	upstream := ndjson(
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.000Z","message":{"role":"assistant","content":"Hel"},"done":false}`,
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.100Z","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.200Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`,
	)

	var out bytes.Buffer
	fc := &flushCounter{}
	r := NewDefaultRegistry(testLogger())
	err := r.TranslateStream(context.Background(), domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, upstream, &out, fc.flush)
	require.NoError(t, err)

	frames := sseFrames(t, out.Bytes())
	require.Len(t, frames, 4)
	assert.Equal(t, "[DONE]", frames[3])

	var content strings.Builder
	id := gjson.Get(frames[0], "id").String()
	assert.True(t, strings.HasPrefix(id, "chatcmpl-"))
	for _, f := range frames[:3] {
		assert.Equal(t, "chat.completion.chunk", gjson.Get(f, "object").String())
		assert.Equal(t, id, gjson.Get(f, "id").String(), "one id for the whole stream")
		assert.Equal(t, "llama3", gjson.Get(f, "model").String())
		content.WriteString(gjson.Get(f, "choices.0.delta.content").String())
	}
	assert.Equal(t, "Hello", content.String())

	assert.Equal(t, gjson.Null, gjson.Get(frames[0], "choices.0.finish_reason").Type)
	last := frames[2]
	assert.Equal(t, "stop", gjson.Get(last, "choices.0.finish_reason").String())
	assert.Equal(t, int64(3), gjson.Get(last, "usage.prompt_tokens").Int())
	assert.Equal(t, int64(2), gjson.Get(last, "usage.completion_tokens").Int())
	assert.Equal(t, int64(5), gjson.Get(last, "usage.total_tokens").Int())

	assert.Equal(t, 3, fc.n, "flushed after every content frame and at the end")
}

func TestTranslateStream_OpenAIChatToOllama(t *testing.T) {
	t.Parallel()

	upstream := sse(
		`{"id":"chatcmpl-x","object":"chat.completion.chunk","created":1714557600,"model":"gpt","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
		`{"id":"chatcmpl-x","object":"chat.completion.chunk","created":1714557600,"model":"gpt","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
		`{"id":"chatcmpl-x","object":"chat.completion.chunk","created":1714557600,"model":"gpt","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"chatcmpl-x","object":"chat.completion.chunk","created":1714557600,"model":"gpt","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":1,"total_tokens":5}}`,
		`[DONE]`,
	)

	var out bytes.Buffer
	fc := &flushCounter{}
	r := NewDefaultRegistry(testLogger())
	err := r.TranslateStream(context.Background(), domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, upstream, &out, fc.flush)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var content strings.Builder
	for _, l := range lines {
		require.True(t, gjson.Valid(l), l)
		assert.Equal(t, "gpt", gjson.Get(l, "model").String())
		assert.Equal(t, "2024-05-01T10:00:00.000Z", gjson.Get(l, "created_at").String())
		content.WriteString(gjson.Get(l, "message.content").String())
	}
	assert.Equal(t, "Hi", content.String())

	last := lines[2]
	assert.True(t, gjson.Get(last, "done").Bool())
	assert.Equal(t, "stop", gjson.Get(last, "done_reason").String())
	assert.Equal(t, int64(4), gjson.Get(last, "prompt_eval_count").Int(), "trailing usage frame is folded in")
	assert.Equal(t, int64(1), gjson.Get(last, "eval_count").Int())
	assert.False(t, gjson.Get(lines[0], "done").Bool())
}

func TestTranslateStream_OllamaGenerateToOpenAICompletions(t *testing.T) {
	t.Parallel()

	upstream := ndjson(
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.000Z","response":"The sky","done":false}`,
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.000Z","response":" is blue","done":false}`,
		`{"model":"llama3","created_at":"2024-05-01T10:00:00.000Z","response":"","done":true,"done_reason":"length","prompt_eval_count":1,"eval_count":2}`,
	)

	var out bytes.Buffer
	fc := &flushCounter{}
	r := NewDefaultRegistry(testLogger())
	err := r.TranslateStream(context.Background(), domain.DialectOllama, domain.DialectOpenAI, domain.KindCompletions, upstream, &out, fc.flush)
	require.NoError(t, err)

	frames := sseFrames(t, out.Bytes())
	require.Len(t, frames, 4)
	assert.Equal(t, "text_completion", gjson.Get(frames[0], "object").String())
	assert.True(t, strings.HasPrefix(gjson.Get(frames[0], "id").String(), "cmpl-"))
	assert.Equal(t, "The sky", gjson.Get(frames[0], "choices.0.text").String())
	assert.Equal(t, " is blue", gjson.Get(frames[1], "choices.0.text").String())
	assert.Equal(t, "length", gjson.Get(frames[2], "choices.0.finish_reason").String())
	assert.Equal(t, "[DONE]", frames[3])
}

func TestTranslateStream_Failures(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())
	noFlush := func() error { return nil }

	t.Run("stream ends without a done frame", func(t *testing.T) {
		upstream := ndjson(`{"model":"m","message":{"role":"assistant","content":"partial"},"done":false}`)
		err := r.TranslateStream(context.Background(), domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, upstream, io.Discard, noFlush)

		var te *domain.TransformationError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StageStream, te.Stage)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("upstream error line", func(t *testing.T) {
		upstream := ndjson(`{"error":"model 'm' not found"}`)
		err := r.TranslateStream(context.Background(), domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, upstream, io.Discard, noFlush)

		var te *domain.TransformationError
		require.ErrorAs(t, err, &te)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("garbage line", func(t *testing.T) {
		upstream := sse(`{not json`)
		err := r.TranslateStream(context.Background(), domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, upstream, io.Discard, noFlush)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("cancelled client", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		upstream := ndjson(`{"model":"m","message":{"role":"assistant","content":"x"},"done":false}`)
		err := r.TranslateStream(ctx, domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, upstream, io.Discard, noFlush)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
