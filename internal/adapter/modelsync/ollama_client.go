package modelsync

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/version"
)

const maxPullLineSize = 1 << 20

// OllamaClient lists through /api/tags and pulls through /api/pull,
// following the NDJSON progress stream until it reports success.
type OllamaClient struct {
	client HTTPClient
}

var _ ports.ModelClient = (*OllamaClient)(nil)

func NewOllamaClient(client HTTPClient) *OllamaClient {
	return &OllamaClient{client: client}
}

func (c *OllamaClient) ListModels(ctx context.Context, backend *domain.Backend) ([]string, error) {
	body, err := getJSON(ctx, c.client, backend, constants.PathOllamaTags)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, newSyncError(backend.ID, "list", backend.URLFor(constants.PathOllamaTags), http.StatusOK, 0, domain.ErrMalformedPayload)
	}

	models := gjson.GetBytes(body, "models").Array()
	names := make([]string, 0, len(models))
	for _, m := range models {
		// newer releases send both, older ones only name
		name := m.Get("name").String()
		if name == "" {
			name = m.Get("model").String()
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *OllamaClient) PullModel(ctx context.Context, backend *domain.Backend, model string, progress func(domain.PullProgress)) error {
	if model == "" {
		return errEmptyModelName
	}
	start := time.Now()
	target := backend.URLFor(constants.PathOllamaPull)

	payload, _ := sjson.SetBytes([]byte(`{}`), "model", model)
	payload, _ = sjson.SetBytes(payload, "stream", true)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return newSyncError(backend.ID, "pull", target, 0, time.Since(start), err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(constants.ContentTypeHeader, constants.ContentTypeJSON)

	resp, err := c.client.Do(req)
	if err != nil {
		return newSyncError(backend.ID, "pull", target, 0, time.Since(start), err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := gjson.GetBytes(msg, "error").String()
		if detail == "" {
			detail = string(bytes.TrimSpace(msg))
		}
		return newSyncError(backend.ID, "pull", target, resp.StatusCode, time.Since(start),
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPullLineSize)

	succeeded := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if e := gjson.GetBytes(line, "error"); e.Exists() {
			return newSyncError(backend.ID, "pull", target, resp.StatusCode, time.Since(start), errors.New(e.String()))
		}
		status := gjson.GetBytes(line, "status").String()
		if progress != nil {
			progress(domain.PullProgress{
				Status:    status,
				Completed: gjson.GetBytes(line, "completed").Int(),
				Total:     gjson.GetBytes(line, "total").Int(),
			})
		}
		if status == "success" {
			succeeded = true
		}
	}
	if err := scanner.Err(); err != nil {
		return newSyncError(backend.ID, "pull", target, resp.StatusCode, time.Since(start), err)
	}
	if !succeeded {
		return newSyncError(backend.ID, "pull", target, resp.StatusCode, time.Since(start),
			errors.New("pull stream ended without success"))
	}
	return nil
}
