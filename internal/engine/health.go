package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	healthProbeTimeout = 2 * time.Second

	// speechRoute must appear in the service's declared OpenAPI paths for the
	// second health tier to confirm we are talking to the expected service.
	speechRoute = "/v1/audio/speech"
)

// expectedTitleTokens must all appear (case-insensitively) in the OpenAPI
// title. An unrelated program answering 200 on /health will not carry them.
var expectedTitleTokens = []string{"kokoro", "tts"}

// HealthResult is the outcome of one probe. It is never persisted; the
// supervisor only consumes it in its wait/poll loop.
type HealthResult struct {
	Healthy          bool
	StatusCode       int
	Message          string
	ServiceConfirmed bool
}

// HealthChecker probes a base URL and decides whether the expected service is
// answering there. Implementations must be safe for concurrent use.
type HealthChecker interface {
	Check(ctx context.Context, baseURL string) HealthResult
}

// HTTPHealthChecker is the production two-tier checker: /health first, then
// the OpenAPI signature to defend against port collisions.
type HTTPHealthChecker struct {
	client *http.Client
}

func NewHealthChecker() *HTTPHealthChecker {
	return &HTTPHealthChecker{client: &http.Client{Timeout: healthProbeTimeout}}
}

func (h *HTTPHealthChecker) Check(ctx context.Context, baseURL string) HealthResult {
	base := strings.TrimRight(baseURL, "/")

	status, body, err := h.get(ctx, base+"/health")
	if err != nil {
		return HealthResult{Message: err.Error()}
	}
	if status != http.StatusOK {
		return HealthResult{StatusCode: status, Message: fmt.Sprintf("/health returned status %d", status)}
	}
	var hb struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &hb); err != nil || !strings.EqualFold(hb.Status, "healthy") {
		return HealthResult{StatusCode: status, Message: "/health did not report a healthy status"}
	}

	status, body, err = h.get(ctx, base+"/openapi.json")
	if err != nil {
		return HealthResult{StatusCode: http.StatusOK, Message: "openapi probe failed: " + err.Error()}
	}
	if status != http.StatusOK || !matchesServiceSignature(body) {
		return HealthResult{
			StatusCode: status,
			Message:    "service on this port answered /health but does not look like " + PackageName + "; possible port collision with an unrelated service",
		}
	}
	return HealthResult{Healthy: true, StatusCode: http.StatusOK, ServiceConfirmed: true}
}

func (h *HTTPHealthChecker) get(ctx context.Context, url string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// matchesServiceSignature checks the OpenAPI document for the product tokens
// in the title and the speech-synthesis route in the path set.
func matchesServiceSignature(body []byte) bool {
	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	title := strings.ToLower(doc.Info.Title)
	for _, tok := range expectedTitleTokens {
		if !strings.Contains(title, tok) {
			return false
		}
	}
	_, ok := doc.Paths[speechRoute]
	return ok
}
