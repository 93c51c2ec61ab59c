// Package genapi is the HTTP client for the external video-generation
// service.
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
)

type Client struct {
	base  string
	httpc *http.Client
}

func New(base string) *Client {
	return &Client{
		base:  base,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

type startRequest struct {
	Prompt   string `json:"prompt"`
	Quality  string `json:"quality"`
	Duration int    `json:"duration"`
}

type startResponse struct {
	StreamID string `json:"stream_id"`
	WHEPURL  string `json:"whep_url"`
}

// StartStream requests a new generation stream. Non-2xx responses and
// malformed bodies surface as ErrGenerationAPI.
func (c *Client) StartStream(ctx context.Context, prompt, quality string, duration int) (*core.StartedStream, error) {
	body, err := json.Marshal(startRequest{Prompt: prompt, Quality: quality, Duration: duration})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationAPI, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ai/stream/start", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: start returned %d", core.ErrGenerationAPI, resp.StatusCode)
	}

	var sr startResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: bad start response: %v", core.ErrGenerationAPI, err)
	}
	if sr.StreamID == "" || sr.WHEPURL == "" {
		return nil, fmt.Errorf("%w: start response missing stream_id or whep_url", core.ErrGenerationAPI)
	}

	log.Info().Str("module", "genapi").Str("stream", sr.StreamID).Msg("stream started")
	return &core.StartedStream{StreamID: sr.StreamID, WHEPURL: sr.WHEPURL}, nil
}

// StreamStatus polls the status of a running stream.
func (c *Client) StreamStatus(ctx context.Context, streamID string) (map[string]any, error) {
	url := fmt.Sprintf("%s/ai/stream/%s/status", c.base, streamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationAPI, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGenerationAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status returned %d", core.ErrGenerationAPI, resp.StatusCode)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: bad status response: %v", core.ErrGenerationAPI, err)
	}
	return status, nil
}
