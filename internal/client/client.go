// Package client is the HTTP client for the /identify boundary.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rfiorani/echomatch/internal/model"
)

// ErrTransport marks a failed round-trip to the identification service:
// connection failures, unreadable responses, or a server-reported error.
var ErrTransport = errors.New("identification request failed")

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type identifyRequest struct {
	Codes []uint32 `json:"codes"`
}

type identifyResponse struct {
	Found  bool    `json:"found"`
	Score  int     `json:"score"`
	Title  *string `json:"title"`
	Artist *string `json:"artist"`
	Album  *string `json:"album"`
	Error  string  `json:"error"`
}

// Identify submits pre-decoded codes and returns the service's verdict.
// A "no match" response is a nil-error result with Found=false.
func (c *Client) Identify(ctx context.Context, codes []uint32) (*model.Identification, error) {
	body, err := json.Marshal(identifyRequest{Codes: codes})
	if err != nil {
		return nil, fmt.Errorf("encoding identify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/identify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var payload identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrTransport, err)
	}

	if payload.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrTransport, payload.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	return &model.Identification{
		Found: payload.Found,
		Score: payload.Score,
		Meta: model.TrackMetadata{
			Title:  payload.Title,
			Artist: payload.Artist,
			Album:  payload.Album,
		},
	}, nil
}
