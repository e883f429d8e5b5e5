// Package client provides the StarChain Go SDK for talking to a registry
// over its HTTP API: requesting ownership challenges, submitting signed
// proofs, and reading the chain.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned by block lookups when the registry reports 404.
var ErrNotFound = errors.New("block not found")

// Block mirrors one sealed chain block as returned by the registry.
type Block struct {
	Height      int             `json:"height"`
	TimestampMs int64           `json:"timestamp_ms"`
	PrevHash    string          `json:"prev_hash"`
	Payload     json.RawMessage `json:"payload"`
	Hash        string          `json:"hash"`
}

// ChainStatus holds the chain overview returned by GET /chain.
type ChainStatus struct {
	Height  int    `json:"height"`
	TipHash string `json:"tip_hash"`
}

// Violation is one integrity finding from GET /chain/validate.
type Violation struct {
	Kind   string `json:"kind"`
	Height int    `json:"height"`
}

// ValidateResult is the outcome of a full-chain validation scan.
type ValidateResult struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
}

// Challenge is the message a wallet must sign to prove ownership.
type Challenge struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

// Star is one decoded star payload from GET /stars/:address.
type Star struct {
	Owner string          `json:"owner"`
	Star  json.RawMessage `json:"star"`
}

// ProofRequest is the payload for SubmitProof.
type ProofRequest struct {
	Address   string          `json:"address"`
	Message   string          `json:"message"`
	Signature string          `json:"signature"`
	Star      json.RawMessage `json:"star"`
}

// Client is the StarChain SDK entry point.
type Client struct {
	registryBase string
	httpClient   *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client connected to registryBase, e.g.
//
//	c := client.New("http://localhost:8080")
func New(registryBase string, opts ...Option) *Client {
	c := &Client{
		registryBase: registryBase,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Status returns the current chain height and tip hash.
func (c *Client) Status(ctx context.Context) (*ChainStatus, error) {
	var out ChainStatus
	if err := c.get(ctx, "/api/v1/chain", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate runs a full-chain integrity scan on the registry.
func (c *Client) Validate(ctx context.Context) (*ValidateResult, error) {
	var out ValidateResult
	if err := c.get(ctx, "/api/v1/chain/validate", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockByHeight fetches the block at the given height.
func (c *Client) BlockByHeight(ctx context.Context, height int) (*Block, error) {
	var out Block
	if err := c.get(ctx, fmt.Sprintf("/api/v1/blocks/height/%d", height), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockByHash fetches the block with the given hash.
func (c *Client) BlockByHash(ctx context.Context, hash string) (*Block, error) {
	var out Block
	if err := c.get(ctx, "/api/v1/blocks/hash/"+hash, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestChallenge asks the registry for an ownership challenge message.
func (c *Client) RequestChallenge(ctx context.Context, address string) (*Challenge, error) {
	var out Challenge
	if err := c.post(ctx, "/api/v1/ownership/challenge", map[string]string{"address": address}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitProof submits a signed challenge plus the star being claimed, and
// returns the newly sealed block.
func (c *Client) SubmitProof(ctx context.Context, req ProofRequest) (*Block, error) {
	var out Block
	if err := c.post(ctx, "/api/v1/ownership/proof", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StarsByAddress lists every star registered to the wallet address.
func (c *Client) StarsByAddress(ctx context.Context, address string) ([]Star, error) {
	var out struct {
		Stars []Star `json:"stars"`
	}
	if err := c.get(ctx, "/api/v1/stars/"+address, &out); err != nil {
		return nil, err
	}
	return out.Stars, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.registryBase+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.registryBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("registry returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
