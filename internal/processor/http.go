package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// HTTPProcessor hands a material to the text-extraction service
type HTTPProcessor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPProcessor creates a processor that POSTs to endpoint. A nil client
// uses http.DefaultClient.
func NewHTTPProcessor(endpoint string, client *http.Client, logger *slog.Logger) *HTTPProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProcessor{
		endpoint: endpoint,
		client:   client,
		logger:   logger,
	}
}

type extractionRequest struct {
	PayloadRef string `json:"payload_ref"`
}

// Process sends {"payload_ref": ...} and treats any 2xx response as success
func (p *HTTPProcessor) Process(ctx context.Context, payloadRef string) error {
	body, err := json.Marshal(extractionRequest{PayloadRef: payloadRef})
	if err != nil {
		return fmt.Errorf("failed to marshal extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		p.logger.Debug("Extraction service accepted material",
			slog.String("payload_ref", payloadRef),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
