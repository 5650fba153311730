package modelsync

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

// OpenAIClient can list models but the dialect has no pull operation, so a
// missing model on an OpenAI backend ends up Failed.
type OpenAIClient struct {
	client HTTPClient
}

var _ ports.ModelClient = (*OpenAIClient)(nil)

func NewOpenAIClient(client HTTPClient) *OpenAIClient {
	return &OpenAIClient{client: client}
}

func (c *OpenAIClient) ListModels(ctx context.Context, backend *domain.Backend) ([]string, error) {
	body, err := getJSON(ctx, c.client, backend, constants.PathV1Models)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, newSyncError(backend.ID, "list", backend.URLFor(constants.PathV1Models), http.StatusOK, 0, domain.ErrMalformedPayload)
	}

	data := gjson.GetBytes(body, "data").Array()
	names := make([]string, 0, len(data))
	for _, m := range data {
		if id := m.Get("id").String(); id != "" {
			names = append(names, id)
		}
	}
	return names, nil
}

func (c *OpenAIClient) PullModel(_ context.Context, backend *domain.Backend, model string, _ func(domain.PullProgress)) error {
	return fmt.Errorf("%w: %s backend %s cannot pull %s", domain.ErrUnsupportedOperation, backend.Dialect, backend.ID, model)
}
