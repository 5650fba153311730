package translator

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

const (
	ollamaChatJSON = `{"model":"llama3:8b","created_at":"2024-05-01T10:00:00.123Z","message":{"role":"assistant","content":"Hi there"},` +
		`"done":true,"done_reason":"stop","total_duration":5000000,"load_duration":100,"prompt_eval_count":12,"prompt_eval_duration":200,"eval_count":7,"eval_duration":300}`
	ollamaGenerateJSON = `{"model":"llama3:8b","created_at":"2024-05-01T10:00:00.123Z","response":"The sky is blue","done":true,"done_reason":"length","prompt_eval_count":5,"eval_count":4}`
	ollamaEmbedOneJSON = `{"embedding":[0.1,-0.2,0.3]}`
	ollamaEmbedsJSON   = `{"model":"nomic-embed-text","embeddings":[[0.1,0.2],[0.3,0.4]],"prompt_eval_count":6}`
	ollamaTagsJSON     = `{"models":[{"name":"llama3:8b","model":"llama3:8b","modified_at":"2024-04-01T08:30:00.000Z","size":4661224676,"digest":"abc123","details":{"family":"llama"}}]}`
	ollamaShowJSON     = `{"modelfile":"FROM llama3","parameters":"stop <eot>","template":"{{ .Prompt }}","details":{"family":"llama"},"model_info":{"general.architecture":"llama"}}`

	openAIChatJSON = `{"id":"chatcmpl-1","object":"chat.completion","created":1714557600,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`
	openAICompletionJSON = `{"id":"cmpl-1","object":"text_completion","created":1714557600,"model":"gpt-3.5-turbo-instruct",` +
		`"choices":[{"index":0,"text":"once upon a time","finish_reason":"length"}],"usage":{"prompt_tokens":4,"completion_tokens":5,"total_tokens":9}}`
	openAIEmbeddingJSON = `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]},` +
		`{"object":"embedding","index":1,"embedding":[-1,2]}],"usage":{"prompt_tokens":8,"total_tokens":8}}`
	openAIModelsJSON = `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":1714557600,"owned_by":"openai"}]}`
)

func sameValues(t *testing.T, want, got []byte, paths ...string) {
	t.Helper()
	for _, p := range paths {
		w := gjson.GetBytes(want, p)
		g := gjson.GetBytes(got, p)
		require.True(t, w.Exists(), "fixture is missing %s", p)
		assert.Equal(t, w.Value(), g.Value(), "path %s", p)
	}
}

func TestRoundTrip_Ollama(t *testing.T) {
	t.Parallel()

	codec := NewOllamaCodec()
	tests := []struct {
		name  string
		raw   string
		kind  domain.ResponseKind
		paths []string
	}{
		{"chat", ollamaChatJSON, domain.ResponseChat,
			[]string{"model", "created_at", "message.role", "message.content", "done", "done_reason", "total_duration", "prompt_eval_count", "eval_count", "eval_duration"}},
		{"generate", ollamaGenerateJSON, domain.ResponseCompletion,
			[]string{"model", "created_at", "response", "done", "done_reason", "prompt_eval_count", "eval_count"}},
		{"single embedding", ollamaEmbedOneJSON, domain.ResponseEmbedding, []string{"embedding"}},
		{"embedding list", ollamaEmbedsJSON, domain.ResponseEmbedding, []string{"model", "embeddings", "prompt_eval_count"}},
		{"tags", ollamaTagsJSON, domain.ResponseModelList,
			[]string{"models.0.name", "models.0.modified_at", "models.0.size", "models.0.digest", "models.0.details.family"}},
		{"show", ollamaShowJSON, domain.ResponseModelInfo,
			[]string{"modelfile", "parameters", "template", "details.family", "model_info"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := codec.ToAgnostic([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, resp.Kind())

			out, err := codec.FromAgnostic(resp)
			require.NoError(t, err)
			sameValues(t, []byte(tt.raw), out, tt.paths...)
		})
	}
}

func TestRoundTrip_OpenAI(t *testing.T) {
	t.Parallel()

	codec := NewOpenAICodec()
	tests := []struct {
		name  string
		raw   string
		kind  domain.ResponseKind
		paths []string
	}{
		{"chat", openAIChatJSON, domain.ResponseChat,
			[]string{"id", "object", "created", "model", "choices.0.message.role", "choices.0.message.content", "choices.0.finish_reason", "usage"}},
		{"completion", openAICompletionJSON, domain.ResponseCompletion,
			[]string{"id", "object", "created", "model", "choices.0.text", "choices.0.finish_reason", "usage"}},
		{"embeddings", openAIEmbeddingJSON, domain.ResponseEmbedding,
			[]string{"object", "model", "data.#.embedding", "data.#.index", "usage.prompt_tokens"}},
		{"models", openAIModelsJSON, domain.ResponseModelList,
			[]string{"object", "data.0.id", "data.0.created", "data.0.owned_by"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := codec.ToAgnostic([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, resp.Kind())

			out, err := codec.FromAgnostic(resp)
			require.NoError(t, err)
			sameValues(t, []byte(tt.raw), out, tt.paths...)
		})
	}
}

func TestTranslateResponse_OllamaChatToOpenAI(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())
	out, err := r.TranslateResponse(domain.DialectOllama, domain.DialectOpenAI, []byte(ollamaChatJSON))
	require.NoError(t, err)

	doc := gjson.ParseBytes(out)
	assert.Equal(t, "chat.completion", doc.Get("object").String())
	assert.Equal(t, "llama3:8b", doc.Get("model").String())
	assert.Equal(t, "assistant", doc.Get("choices.0.message.role").String())
	assert.Equal(t, "Hi there", doc.Get("choices.0.message.content").String())
	assert.Equal(t, "stop", doc.Get("choices.0.finish_reason").String())
	assert.Equal(t, int64(12), doc.Get("usage.prompt_tokens").Int())
	assert.Equal(t, int64(7), doc.Get("usage.completion_tokens").Int())
	assert.Equal(t, int64(19), doc.Get("usage.total_tokens").Int())
	assert.Equal(t, int64(1714557600), doc.Get("created").Int(), "created_at seconds survive as unix time")
	assert.True(t, len(doc.Get("id").String()) > len("chatcmpl-"))
}

func TestTranslateResponse_OpenAIChatToOllama(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())
	out, err := r.TranslateResponse(domain.DialectOpenAI, domain.DialectOllama, []byte(openAIChatJSON))
	require.NoError(t, err)

	doc := gjson.ParseBytes(out)
	assert.Equal(t, "gpt-4o-mini", doc.Get("model").String())
	assert.Equal(t, "Hello!", doc.Get("message.content").String())
	assert.Equal(t, "stop", doc.Get("done_reason").String())
	assert.True(t, doc.Get("done").Bool())
	assert.Equal(t, int64(9), doc.Get("prompt_eval_count").Int())
	assert.Equal(t, int64(3), doc.Get("eval_count").Int())
	assert.Equal(t, "2024-05-01T10:00:00.000Z", doc.Get("created_at").String())
}

func TestTranslateResponse_Embeddings(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())

	t.Run("one openai vector becomes a single ollama embedding", func(t *testing.T) {
		raw := `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1.5,2.5]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`
		out, err := r.TranslateResponse(domain.DialectOpenAI, domain.DialectOllama, []byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []any{1.5, 2.5}, gjson.GetBytes(out, "embedding").Value())
		assert.False(t, gjson.GetBytes(out, "embeddings").Exists())
	})

	t.Run("many openai vectors fan out", func(t *testing.T) {
		out, err := r.TranslateResponse(domain.DialectOpenAI, domain.DialectOllama, []byte(openAIEmbeddingJSON))
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{0.5, 0.25}, []any{-1.0, 2.0}}, gjson.GetBytes(out, "embeddings").Value())
		assert.Equal(t, int64(8), gjson.GetBytes(out, "prompt_eval_count").Int())
	})

	t.Run("single ollama vector becomes one data item", func(t *testing.T) {
		out, err := r.TranslateResponse(domain.DialectOllama, domain.DialectOpenAI, []byte(ollamaEmbedOneJSON))
		require.NoError(t, err)
		doc := gjson.ParseBytes(out)
		assert.Equal(t, int64(1), doc.Get("data.#").Int())
		assert.Equal(t, "embedding", doc.Get("data.0.object").String())
		assert.Equal(t, []any{0.1, -0.2, 0.3}, doc.Get("data.0.embedding").Value())
	})
}

func TestTranslateResponse_ModelLists(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())

	out, err := r.TranslateResponse(domain.DialectOllama, domain.DialectOpenAI, []byte(ollamaTagsJSON))
	require.NoError(t, err)
	doc := gjson.ParseBytes(out)
	assert.Equal(t, "list", doc.Get("object").String())
	assert.Equal(t, "llama3:8b", doc.Get("data.0.id").String())
	assert.Equal(t, "library", doc.Get("data.0.owned_by").String())
	assert.Equal(t, int64(1711960200), doc.Get("data.0.created").Int())

	out, err = r.TranslateResponse(domain.DialectOpenAI, domain.DialectOllama, []byte(openAIModelsJSON))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(out, "models.0.name").String())
}

func TestTranslateResponse_ModelInfoHasNoOpenAIShape(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())
	_, err := r.TranslateResponse(domain.DialectOllama, domain.DialectOpenAI, []byte(ollamaShowJSON))
	require.Error(t, err)

	var te *domain.TransformationError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.IsUnsupported())
	assert.Equal(t, StageEncodeResponse, te.Stage)
	assert.Equal(t, domain.DialectOllama, te.Source)
	assert.Equal(t, http.StatusNotImplemented, domain.StatusCodeForError(err))
}

func TestSniff_PriorityAndFailures(t *testing.T) {
	t.Parallel()

	ollama := NewOllamaCodec()
	openai := NewOpenAICodec()

	t.Run("message wins over response", func(t *testing.T) {
		resp, err := ollama.ToAgnostic([]byte(`{"message":{"role":"assistant","content":"a"},"response":"b"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseChat, resp.Kind())
	})

	t.Run("object discriminator selects completion", func(t *testing.T) {
		resp, err := openai.ToAgnostic([]byte(`{"object":"text_completion","choices":[]}`))
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseCompletion, resp.Kind())
	})

	t.Run("embedding list is not a model list", func(t *testing.T) {
		resp, err := openai.ToAgnostic([]byte(openAIEmbeddingJSON))
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseEmbedding, resp.Kind())
	})

	for name, raw := range map[string]string{
		"unknown keys":    `{"status":"ok"}`,
		"not json":        `<html>bad gateway</html>`,
		"top level array": `[1,2,3]`,
	} {
		t.Run(name, func(t *testing.T) {
			for _, codec := range []Codec{ollama, openai} {
				_, err := codec.ToAgnostic([]byte(raw))
				var te *domain.TransformationError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, StageSniff, te.Stage)
				assert.Equal(t, codec.Dialect(), te.Source)
				assert.Equal(t, raw, string(te.Payload))
			}
		})
	}

	t.Run("matched shape with bad body fails in decode stage", func(t *testing.T) {
		_, err := ollama.ToAgnostic([]byte(`{"embedding":"nope"}`))
		var te *domain.TransformationError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StageDecodeResponse, te.Stage)
		assert.Equal(t, string(domain.ResponseEmbedding), te.Kind)
	})
}

func TestTranslateRequest(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry(testLogger())

	t.Run("ollama generate to openai completions", func(t *testing.T) {
		body := `{"model":"llama3","prompt":"Why?","system":"Be brief","options":{"temperature":0.2,"top_p":0.9,"num_predict":64,"seed":7,"stop":["\n"]}}`
		up, err := r.TranslateRequest(domain.DialectOllama, domain.DialectOpenAI, domain.KindCompletions, []byte(body))
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, up.Method)
		assert.Equal(t, "/v1/completions", up.Path)

		doc := gjson.ParseBytes(up.Body)
		assert.Equal(t, "llama3", doc.Get("model").String())
		assert.Equal(t, "Be brief\n\nWhy?", doc.Get("prompt").String())
		assert.InDelta(t, 0.2, doc.Get("temperature").Float(), 1e-9)
		assert.InDelta(t, 0.9, doc.Get("top_p").Float(), 1e-9)
		assert.Equal(t, int64(64), doc.Get("max_tokens").Int())
		assert.Equal(t, int64(7), doc.Get("seed").Int())
		assert.Equal(t, []any{"\n"}, doc.Get("stop").Value())
		assert.True(t, doc.Get("stream").Bool(), "ollama streams unless told otherwise")
		assert.True(t, doc.Get("stream_options.include_usage").Bool())
	})

	t.Run("openai chat to ollama chat", func(t *testing.T) {
		body := `{"model":"gpt","messages":[{"role":"system","content":"sys"},{"role":"user","content":[{"type":"text","text":"hel"},{"type":"text","text":"lo"}]}],"max_tokens":10,"stop":"END"}`
		up, err := r.TranslateRequest(domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, []byte(body))
		require.NoError(t, err)
		assert.Equal(t, "/api/chat", up.Path)

		doc := gjson.ParseBytes(up.Body)
		assert.Equal(t, "sys", doc.Get("messages.0.content").String())
		assert.Equal(t, "hello", doc.Get("messages.1.content").String())
		assert.Equal(t, int64(10), doc.Get("options.num_predict").Int())
		assert.Equal(t, []any{"END"}, doc.Get("options.stop").Value())
		assert.True(t, doc.Get("stream").Exists(), "stream false must be explicit for ollama")
		assert.False(t, doc.Get("stream").Bool())
	})

	t.Run("openai embeddings list to ollama embed", func(t *testing.T) {
		up, err := r.TranslateRequest(domain.DialectOpenAI, domain.DialectOllama, domain.KindEmbeddings, []byte(`{"model":"e","input":["a","b"]}`))
		require.NoError(t, err)
		assert.Equal(t, "/api/embed", up.Path)
		assert.Equal(t, []any{"a", "b"}, gjson.GetBytes(up.Body, "input").Value())
	})

	t.Run("ollama prompt embeddings to openai input", func(t *testing.T) {
		up, err := r.TranslateRequest(domain.DialectOllama, domain.DialectOpenAI, domain.KindEmbeddings, []byte(`{"model":"e","prompt":"hello"}`))
		require.NoError(t, err)
		assert.Equal(t, "/v1/embeddings", up.Path)
		assert.Equal(t, "hello", gjson.GetBytes(up.Body, "input").String())
	})

	t.Run("model listing", func(t *testing.T) {
		up, err := r.TranslateRequest(domain.DialectOllama, domain.DialectOpenAI, domain.KindModels, nil)
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, up.Method)
		assert.Equal(t, "/v1/models", up.Path)
		assert.Empty(t, up.Body)
	})

	t.Run("management kinds need an ollama backend", func(t *testing.T) {
		_, err := r.TranslateRequest(domain.DialectOllama, domain.DialectOpenAI, domain.KindShow, []byte(`{"model":"m"}`))
		var te *domain.TransformationError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.IsUnsupported())
	})

	t.Run("batched prompts are unsupported", func(t *testing.T) {
		_, err := r.TranslateRequest(domain.DialectOpenAI, domain.DialectOllama, domain.KindCompletions, []byte(`{"model":"m","prompt":["a","b"]}`))
		var te *domain.TransformationError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.IsUnsupported())
		assert.Equal(t, domain.DialectOllama, te.Target)
	})

	t.Run("fields without a counterpart are refused", func(t *testing.T) {
		tests := []struct {
			name   string
			source domain.Dialect
			target domain.Dialect
			kind   domain.RequestKind
			body   string
			field  string
		}{
			{"ollama images", domain.DialectOllama, domain.DialectOpenAI, domain.KindCompletions, `{"model":"llava","prompt":"what is this","images":["aGk="]}`, "images"},
			{"ollama json format", domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, `{"model":"m","format":"json","messages":[{"role":"user","content":"hi"}]}`, "format"},
			{"ollama message images", domain.DialectOllama, domain.DialectOpenAI, domain.KindChat, `{"model":"m","messages":[{"role":"user","content":"hi","images":["aGk="]}]}`, "messages.images"},
			{"openai tools", domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, `{"model":"m","messages":[{"role":"user","content":"hi"}],"tools":[{"type":"function","function":{"name":"f"}}]}`, "tools"},
			{"openai json mode", domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, `{"model":"m","messages":[{"role":"user","content":"hi"}],"response_format":{"type":"json_object"}}`, "response_format"},
			{"openai image part", domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, `{"model":"m","messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"x"}}]}]}`, "messages.content.image_url"},
			{"openai several choices", domain.DialectOpenAI, domain.DialectOllama, domain.KindCompletions, `{"model":"m","prompt":"hi","n":3}`, "n"},
			{"openai base64 embeddings", domain.DialectOpenAI, domain.DialectOllama, domain.KindEmbeddings, `{"model":"m","input":"hi","encoding_format":"base64"}`, "encoding_format"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := r.TranslateRequest(tt.source, tt.target, tt.kind, []byte(tt.body))
				var te *domain.TransformationError
				require.ErrorAs(t, err, &te)
				assert.True(t, te.IsUnsupported())
				assert.Contains(t, te.Err.Error(), tt.field+" cannot")
			})
		}
	})

	t.Run("server tuning and neutral values still translate", func(t *testing.T) {
		_, err := r.TranslateRequest(domain.DialectOllama, domain.DialectOpenAI, domain.KindChat,
			[]byte(`{"model":"m","keep_alive":"5m","images":[],"messages":[{"role":"user","content":"hi"}]}`))
		require.NoError(t, err)

		_, err = r.TranslateRequest(domain.DialectOpenAI, domain.DialectOllama, domain.KindChat,
			[]byte(`{"model":"m","user":"u1","n":1,"response_format":{"type":"text"},"tools":[],"messages":[{"role":"user","content":"hi"}]}`))
		require.NoError(t, err)
	})

	t.Run("malformed body is a client error", func(t *testing.T) {
		_, err := r.TranslateRequest(domain.DialectOpenAI, domain.DialectOllama, domain.KindChat, []byte(`{"model":"m","messages":"hi"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		assert.Equal(t, http.StatusBadRequest, domain.StatusCodeForError(err))
	})
}
