package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// HTTPRestarter drives the orchestration layer's REST API to restart or
// roll back a module instance: the production Restarter backing an opaque,
// externally-owned module-restart mechanism.
type HTTPRestarter struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPRestarter constructs an HTTPRestarter against baseURL with timeout
// applied per request. Calls are traced (otelhttp) and throttled to a
// sustained 10 requests/second with a burst of 5, so a wave of simultaneous
// auto-resurrections can't overrun the orchestration layer's restart API.
func NewHTTPRestarter(baseURL string, timeout time.Duration) *HTTPRestarter {
	return &HTTPRestarter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

type restartRequest struct {
	Module     string `json:"module"`
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason,omitempty"`
}

func (h *HTTPRestarter) Restart(ctx context.Context, module, instanceID string) (Result, error) {
	return h.call(ctx, "/v1/restart", restartRequest{Module: module, InstanceID: instanceID})
}

func (h *HTTPRestarter) Rollback(ctx context.Context, module, instanceID, reason string) (Result, error) {
	return h.call(ctx, "/v1/rollback", restartRequest{Module: module, InstanceID: instanceID, Reason: reason})
}

func (h *HTTPRestarter) call(ctx context.Context, path string, body restartRequest) (Result, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := h.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return Result{Success: false, Message: string(respBody)},
			fmt.Errorf("restarter returned status %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{Success: true}, nil
	}
	return out, nil
}
