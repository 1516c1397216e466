// Package provider implements the HTTP/JSON RPC client the assembler uses
// to request, download, and release cells from remote providers, plus the
// per-provider health tracker that backs the assembler's failover policy.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/types"
	"github.com/rs/zerolog"
)

// CellHandle is the provider's acknowledgment that a cell has been
// reserved, returned by RequestCell.
type CellHandle struct {
	CellID       string
	DownloadURL  string
	CellType     string
	Capability   string
	Version      string
	ExpirationTS time.Time
}

// CellBody is the downloaded cell package, returned by DownloadCell.
type CellBody struct {
	CellID           string
	QuantumSignature string
	Package          map[string]any
}

// Client is a thin HTTP/JSON wrapper over the provider RPC contract
// (spec §6.2). One Client is shared across every configured provider;
// each call takes the target provider's base URL.
type Client struct {
	http    *http.Client
	apiKey  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a provider RPC client with the given per-call timeout
// and optional API key (sent as X-API-Key when non-empty).
func NewClient(timeout time.Duration, apiKey string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		timeout: timeout,
		logger:  log.WithComponent("provider"),
	}
}

type requestCellBody struct {
	Capability       string         `json:"capability,omitempty"`
	CellType         string         `json:"cell_type,omitempty"`
	Version          string         `json:"version,omitempty"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	QuantumSignature string         `json:"quantum_signature"`
	AssemblerID      string         `json:"assembler_id"`
}

type requestCellResponse struct {
	Status       string `json:"status"`
	CellID       string `json:"cell_id"`
	DownloadURL  string `json:"download_url"`
	CellType     string `json:"cell_type"`
	Capability   string `json:"capability"`
	Version      string `json:"version"`
	ExpirationTS string `json:"expiration_ts"`
}

// RequestCell calls POST /cells/request against the given provider.
// Retried at most once on any failure (transport error, error status or
// undecodable response) before returning an error.
func (c *Client) RequestCell(ctx context.Context, providerURL string, spec types.CellSpec, intentCtx types.IntentContext, quantumSignature, assemblerID string) (*CellHandle, error) {
	body := requestCellBody{
		Capability:       spec.Capability,
		CellType:         spec.CellType,
		Version:          spec.Version,
		Parameters:       spec.Parameters,
		Context:          map[string]any{"assembler_id": intentCtx.AssemblerID, "user_id": intentCtx.UserID},
		QuantumSignature: quantumSignature,
		AssemblerID:      assemblerID,
	}

	var resp requestCellResponse
	if err := c.call(ctx, http.MethodPost, providerURL, "/cells/request", body, &resp); err != nil {
		return nil, err
	}

	expiration, _ := time.Parse(time.RFC3339, resp.ExpirationTS)
	return &CellHandle{
		CellID:       resp.CellID,
		DownloadURL:  resp.DownloadURL,
		CellType:     resp.CellType,
		Capability:   resp.Capability,
		Version:      resp.Version,
		ExpirationTS: expiration,
	}, nil
}

type downloadCellResponse struct {
	Status           string         `json:"status"`
	CellID           string         `json:"cell_id"`
	QuantumSignature string         `json:"quantum_signature"`
	Package          map[string]any `json:"package"`
}

// DownloadCell calls GET /cells/{id} against the given provider.
func (c *Client) DownloadCell(ctx context.Context, providerURL string, handle *CellHandle) (*CellBody, error) {
	var resp downloadCellResponse
	path := fmt.Sprintf("/cells/%s", handle.CellID)
	if err := c.call(ctx, http.MethodGet, providerURL, path, nil, &resp); err != nil {
		return nil, err
	}

	return &CellBody{
		CellID:           resp.CellID,
		QuantumSignature: resp.QuantumSignature,
		Package:          resp.Package,
	}, nil
}

type releaseCellBody struct {
	QuantumSignature string             `json:"quantum_signature"`
	UsageMetrics     types.UsageMetrics `json:"usage_metrics"`
}

type releaseCellResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ReleaseCell calls POST /cells/{id}/release against the given provider.
func (c *Client) ReleaseCell(ctx context.Context, providerURL string, handle *CellHandle, quantumSignature string, usage types.UsageMetrics) error {
	body := releaseCellBody{
		QuantumSignature: quantumSignature,
		UsageMetrics:     usage,
	}

	var resp releaseCellResponse
	path := fmt.Sprintf("/cells/%s/release", handle.CellID)
	if err := c.call(ctx, http.MethodPost, providerURL, path, body, &resp); err != nil {
		return err
	}
	if resp.Status != "success" && resp.Status != "" {
		return fmt.Errorf("release rejected: %s", resp.Message)
	}
	return nil
}

// call performs one JSON request, retrying once on any error.
func (c *Client) call(ctx context.Context, method, providerURL, path string, body any, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.doOnce(ctx, method, providerURL, path, body, out)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Str("provider", providerURL).Str("path", path).Int("attempt", attempt+1).Msg("provider RPC attempt failed")
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, providerURL, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, providerURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider RPC to %s: %w", providerURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("provider %s returned status %d", providerURL, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}
