package nodeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/flowbot-io/flowbot/engine"
)

// HTTPExecutor calls external APIs
type HTTPExecutor struct {
	client *http.Client
}

var _ engine.NodeExecutor = (*HTTPExecutor)(nil)

func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExecutor{client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, node engine.Node, input engine.CascadingInput, execCtx *engine.ExecutionContext) (*engine.NodeResult, error) {
	startTime := time.Now()
	result := newNodeResult(node, startTime)

	resolved, err := execCtx.EvaluateConfig(node.Config, input)
	if err != nil {
		return failResult(result, startTime, "config resolution failed: %v", err), err
	}

	cfg, err := engine.ExtractHTTPConfig(resolved)
	if err != nil {
		return failResult(result, startTime, "invalid HTTP config: %v", err), err
	}

	var body io.Reader
	if len(cfg.Body) > 0 {
		encoded, err := json.Marshal(cfg.Body)
		if err != nil {
			return failResult(result, startTime, "failed to encode request body: %v", err), err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.GetMethod(), cfg.URL, body)
	if err != nil {
		return failResult(result, startTime, "failed to build request: %v", err), err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	log.Printf("🌐 HTTP node %s: %s %s", node.ID, cfg.GetMethod(), cfg.URL)

	resp, err := e.client.Do(req)
	if err != nil {
		return failResult(result, startTime, "request failed: %v", err), err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failResult(result, startTime, "failed to read response: %v", err), err
	}

	result.Output["status_code"] = resp.StatusCode
	result.Output["headers"] = flattenHeaders(resp.Header)

	var parsed any
	if json.Unmarshal(responseBody, &parsed) == nil {
		result.Output["body"] = parsed
	} else {
		result.Output["body"] = string(responseBody)
	}

	success := false
	for _, code := range cfg.GetSuccessCodes() {
		if resp.StatusCode == code {
			success = true
			break
		}
	}

	result.Success = success
	result.Output["success"] = success
	if !success {
		result.Error = "unexpected status code: " + resp.Status
	}
	result.Duration = time.Since(startTime).Milliseconds()

	return result, nil
}

func (e *HTTPExecutor) SupportsType(nodeType engine.NodeType) bool {
	return nodeType == engine.NodeTypeHTTP
}

func (e *HTTPExecutor) ValidateConfig(config map[string]any) error {
	_, err := engine.ExtractHTTPConfig(config)
	return err
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key := range headers {
		flat[key] = headers.Get(key)
	}
	return flat
}
