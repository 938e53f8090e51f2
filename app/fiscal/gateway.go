package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"PosFiscal/app/config"

	"go.uber.org/zap"
)

// GatewayResult is the normalized outcome of one agent call. Expected failure
// modes never surface as Go errors: OK is false and Err carries a
// human-readable description, with RawResponse preserved for diagnosis.
type GatewayResult struct {
	OK               bool
	StatusCode       int
	DocumentNumber   string
	VerificationCode string
	QRPayload        string
	RawResponse      string
	Err              string
}

// agentResponse is the JSON body the local agent returns.
type agentResponse struct {
	DocumentNumber   string `json:"documentNumber"`
	VerificationCode string `json:"verificationCode"`
	QRPayload        string `json:"qrPayload"`
	Error            string `json:"error"`
}

// Gateway is the synchronous HTTP transport to the local fiscalisation
// agent. One blocking call per invocation; retry policy lives in the engine.
type Gateway struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// NewGateway builds a gateway client with fixed connect and request
// timeouts. A timed-out call is indistinguishable from a network failure.
func NewGateway(cfg config.AgentConfig, log *zap.Logger) *Gateway {
	return &Gateway{
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		log: log,
	}
}

// Send posts the payload to the agent and normalizes the response. It never
// holds a database transaction: callers stage before and persist after.
func (g *Gateway) Send(ctx context.Context, payload []byte) GatewayResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return GatewayResult{Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("fiscal agent unreachable", zap.Error(err))
		return GatewayResult{Err: fmt.Sprintf("fiscal agent unreachable: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GatewayResult{StatusCode: resp.StatusCode, Err: fmt.Sprintf("read response: %v", err)}
	}

	result := GatewayResult{StatusCode: resp.StatusCode, RawResponse: string(body)}

	// A proxy or firewall answering in place of the agent returns HTML.
	if looksLikeHTML(body) {
		result.Err = "agent returned HTML instead of JSON (request intercepted?)"
		return result
	}

	var parsed agentResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parseErr == nil && parsed.Error != "" {
			result.Err = parsed.Error
		} else {
			result.Err = fmt.Sprintf("agent returned HTTP %d", resp.StatusCode)
		}
		return result
	}

	if parseErr != nil {
		result.Err = fmt.Sprintf("malformed agent response: %v", parseErr)
		return result
	}
	if parsed.Error != "" {
		result.Err = parsed.Error
		return result
	}
	if parsed.DocumentNumber == "" {
		result.Err = "agent response missing document number"
		return result
	}

	result.OK = true
	result.DocumentNumber = parsed.DocumentNumber
	result.VerificationCode = parsed.VerificationCode
	result.QRPayload = parsed.QRPayload
	return result
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<head>") ||
		strings.Contains(lower, "<body")
}
