package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
)

func TestProxyHandler_OllamaPassthrough(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addFrontend(t, "default", "*", []string{"gpu-1"}, nil)

	rec := h.do(http.MethodPost, constants.PathOllamaChat,
		`{"model":"llama3:8b","stream":false,"messages":[{"role":"user","content":"hi"}]}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gpu-1", rec.Header().Get(constants.HeaderBackend))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))
	assert.Equal(t, "hello from gpu-1", gjson.Get(rec.Body.String(), "message.content").String())
}

func TestProxyHandler_OpenAIClientOnOllamaBackend(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addFrontend(t, "default", "*", []string{"gpu-1"}, nil)

	t.Run("chat is translated", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathV1ChatCompletions,
			`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}]}`, nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := rec.Body.String()
		assert.Equal(t, "chat.completion", gjson.Get(body, "object").String())
		assert.Equal(t, "hello from gpu-1", gjson.Get(body, "choices.0.message.content").String())
		assert.Equal(t, "ollama", rec.Header().Get(constants.HeaderDialect))
	})

	t.Run("models listing is translated", func(t *testing.T) {
		rec := h.do(http.MethodGet, constants.PathV1Models, "", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "llama3:8b", gjson.Get(rec.Body.String(), "data.0.id").String())
	})

	t.Run("upstream refusal keeps status and message", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathV1Completions, `{"model":"missing","prompt":"hi"}`, nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, gjson.Get(rec.Body.String(), "error.message").String(), `model "missing" not found`)
	})
}

func TestProxyHandler_FrontendResolution(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addFrontend(t, "llm", "llm.example.com", []string{"gpu-1"}, nil)

	body := `{"model":"llama3:8b","stream":false,"messages":[]}`

	t.Run("host with port matches", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathOllamaChat, body, http.Header{"Host": {"llm.example.com:11434"}})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("unknown host is 404", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathOllamaChat, body, http.Header{"Host": {"other.test"}})
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "other.test")
	})
}

func TestProxyHandler_PayloadValidation(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addFrontend(t, "default", "*", []string{"gpu-1"}, nil)

	t.Run("openai shape", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathV1ChatCompletions, `{"model":"llama3:8b"}`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := rec.Body.String()
		assert.Equal(t, "invalid_request_error", gjson.Get(body, "error.type").String())
		assert.Equal(t, "invalid_request", gjson.Get(body, "error.code").String())
		assert.Contains(t, gjson.Get(body, "error.message").String(), "messages")
	})

	t.Run("ollama shape", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathOllamaChat, `{"model":`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, gjson.Get(rec.Body.String(), "error").Exists())
	})

	t.Run("nothing reaches a backend", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathOllamaGenerate, `{"prompt":"no model"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Header().Get(constants.HeaderBackend))
	})
}

func TestProxyHandler_DispatchFailures(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addFrontend(t, "default", "*", []string{"gpu-1"}, func(f *domain.Frontend) {
		f.Capabilities.AllowEmbeddings = false
	})

	t.Run("capability disabled", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathV1Embeddings, `{"model":"nomic","input":"x"}`, nil)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "capability_disabled", gjson.Get(rec.Body.String(), "error.code").String())
	})

	t.Run("no healthy backend", func(t *testing.T) {
		h.health.set("gpu-1", domain.HealthUnhealthy)
		t.Cleanup(func() { h.health.set("gpu-1", domain.HealthHealthy) })

		rec := h.do(http.MethodPost, constants.PathV1ChatCompletions,
			`{"model":"llama3:8b","messages":[{"role":"user","content":"hi"}]}`, nil)

		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "no_healthy_backend", gjson.Get(rec.Body.String(), "error.code").String())
	})

	t.Run("management calls pass through", func(t *testing.T) {
		rec := h.do(http.MethodPost, constants.PathOllamaShow, `{"name":"llama3:8b"}`, nil)

		// the fake upstream has no show endpoint, its 404 comes back as is
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "404 page not found", gjson.Get(rec.Body.String(), "error").String())
	})
}

func TestProxyHandler_StickySessions(t *testing.T) {
	h := newHarness(t)
	h.addBackend(t, "gpu-1", newUpstream(t, "gpu-1"))
	h.addBackend(t, "gpu-2", newUpstream(t, "gpu-2"))
	h.addFrontend(t, "default", "*", []string{"gpu-1", "gpu-2"}, func(f *domain.Frontend) {
		f.StickySessions = true
	})

	body := `{"model":"llama3:8b","stream":false,"messages":[{"role":"user","content":"hi"}]}`
	sticky := http.Header{constants.DefaultStickyHeader: {"thread-42"}}

	first := h.do(http.MethodPost, constants.PathOllamaChat, body, sticky)
	require.Equal(t, http.StatusOK, first.Code)
	pinned := first.Header().Get(constants.HeaderBackend)

	for range 4 {
		rec := h.do(http.MethodPost, constants.PathOllamaChat, body, sticky)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, pinned, rec.Header().Get(constants.HeaderBackend))
	}

	seen := map[string]bool{}
	for range 4 {
		rec := h.do(http.MethodPost, constants.PathOllamaChat, body, nil)
		seen[rec.Header().Get(constants.HeaderBackend)] = true
	}
	assert.Len(t, seen, 2, "requests without a key still rotate")
}

func TestProxyHandler_UnknownRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/push", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, constants.PathOllamaChat, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
