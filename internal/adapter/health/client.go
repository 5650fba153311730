package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
)

type HealthClient struct {
	client HTTPClient
}

func NewHealthClient(client HTTPClient) *HealthClient {
	return &HealthClient{client: client}
}

// Probe issues the backend's health-check recipe once. A HEAD recipe is a
// connectivity check and any response is healthy, otherwise only a 2xx is.
func (hc *HealthClient) Probe(ctx context.Context, backend *domain.Backend) domain.ProbeResult {
	start := time.Now()
	result := domain.ProbeResult{State: domain.HealthUnhealthy}

	checkCtx, cancel := context.WithTimeout(ctx, backend.HealthCheck.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, backend.HealthCheck.Method, backend.HealthCheckURL(), nil)
	if err != nil {
		result.Latency = time.Since(start)
		result.Err = err
		return result
	}

	resp, err := hc.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}
	defer func(Body io.ReadCloser) {
		_, _ = io.CopyN(io.Discard, Body, maxProbeDrainBytes)
		_ = Body.Close()
	}(resp.Body)

	result.StatusCode = resp.StatusCode
	result.State = determineState(backend.HealthCheck, resp.StatusCode)
	if result.State != domain.HealthHealthy {
		result.Err = fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return result
}

func determineState(recipe domain.HealthCheckRecipe, statusCode int) domain.HealthState {
	if recipe.IsConnectivityCheck() {
		return domain.HealthHealthy
	}
	if statusCode >= HealthyStatusRangeStart && statusCode < HealthyStatusRangeEnd {
		return domain.HealthHealthy
	}
	return domain.HealthUnhealthy
}

// classifyError determines the type of error that occurred during a probe
func classifyError(err error) probeErrorType {
	if err == nil {
		return errorTypeNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errorTypeTimeout
		}
		return errorTypeNetwork
	}
	return errorTypeHTTP
}
