// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package textractapi is a REST client for an asynchronous text extraction
// service exposing start and status endpoints:
//
//	POST /v1/jobs            {"source_uri": "..."}  -> {"job_id": "..."}
//	GET  /v1/jobs/{job_id}                          -> {"status": "...", ...}
//
// It implements extract.Provider.
package textractapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/poiesic/docstream/extract"
)

// DefaultTimeout bounds individual HTTP requests, not the extraction run.
const DefaultTimeout = 15 * time.Second

// ErrHostRequired is returned when the service host is not provided.
var ErrHostRequired = errors.New("extraction service host required")

// Client talks to the extraction service over HTTP.
type Client struct {
	host   string
	apiKey string
	client *http.Client
}

// Config holds client settings.
type Config struct {
	Host    string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a client for the extraction service at cfg.Host.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		host:   cfg.Host,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Submit starts an extraction run for the document at sourceURI.
func (c *Client) Submit(ctx context.Context, sourceURI string) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	body := map[string]any{"source_uri": sourceURI}
	if err := c.postJSON(ctx, c.host+"/v1/jobs", body, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("extraction service returned empty job id")
	}
	return resp.JobID, nil
}

// Poll reports the state of an extraction run.
func (c *Client) Poll(ctx context.Context, providerJobID string) (extract.Status, error) {
	var resp struct {
		Status string `json:"status"`
		Text   string `json:"text"`
		Reason string `json:"reason"`
	}
	if err := c.getJSON(ctx, c.host+"/v1/jobs/"+providerJobID, &resp); err != nil {
		return extract.Status{}, err
	}

	switch resp.Status {
	case "succeeded":
		return extract.Status{State: extract.StateSucceeded, Text: resp.Text}, nil
	case "failed":
		return extract.Status{State: extract.StateFailed, Reason: resp.Reason}, nil
	case "running", "queued":
		return extract.Status{State: extract.StateRunning}, nil
	default:
		return extract.Status{}, fmt.Errorf("unknown job status %q", resp.Status)
	}
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("extraction service %s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
