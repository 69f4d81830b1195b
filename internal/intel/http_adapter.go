package intel

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

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// HTTPBackend talks to the intel service over its REST API.
type HTTPBackend struct {
	baseURL   string
	authToken string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewHTTPBackend constructs an HTTPBackend against baseURL with timeout
// applied per request. authToken, if non-empty, is sent as a bearer token
// on every request. Outbound requests are traced (otelhttp) and throttled
// to a sustained 20 requests/second with a burst of 5, so a kill storm
// cannot overrun the intel service with a matching storm of queries.
func NewHTTPBackend(baseURL, authToken string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL:   baseURL,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter:   rate.NewLimiter(rate.Limit(20), 5),
	}
}

func (h *HTTPBackend) QueryContext(ctx context.Context, report models.KillReport) (models.IntelContext, error) {
	var out models.IntelContext
	if err := h.postJSON(ctx, "/v1/intel/query", report, &out); err != nil {
		return models.IntelContext{}, err
	}
	return out, nil
}

func (h *HTTPBackend) GetHistory(ctx context.Context, module string) ([]models.OutcomeRecord, error) {
	var out []models.OutcomeRecord
	if err := h.getJSON(ctx, "/v1/intel/history/"+module, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTPBackend) ReportOutcome(ctx context.Context, outcome models.OutcomeRecord) error {
	return h.postJSON(ctx, "/v1/intel/outcome", outcome, nil)
}

func (h *HTTPBackend) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	h.authorize(req)
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("intel health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTPBackend) postJSON(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)
	return h.do(req, out)
}

func (h *HTTPBackend) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	h.authorize(req)
	return h.do(req, out)
}

func (h *HTTPBackend) authorize(req *http.Request) {
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
}

func (h *HTTPBackend) do(req *http.Request, out interface{}) error {
	if err := h.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("intel backend returned status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
