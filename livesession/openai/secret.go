package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.aimuz.me/ergowatch/livesession"
)

// DefaultBaseURL is the OpenAI REST base used for the client secret and the
// SDP exchange.
const DefaultBaseURL = "https://api.openai.com/v1"

// httpClient is a package-level client with connection reuse.
var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// SessionToken holds the ephemeral key from createClientSecret.
type SessionToken struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

type clientSecretRequest struct {
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Type             string         `json:"type"`
	Model            string         `json:"model"`
	Instructions     string         `json:"instructions,omitempty"`
	OutputModalities []string       `json:"output_modalities,omitempty"`
	Tools            []functionTool `json:"tools,omitempty"`
	ToolChoice       string         `json:"tool_choice,omitempty"`
}

type functionTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func newSessionConfig(cfg livesession.Config) sessionConfig {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	sc := sessionConfig{
		Type:             "realtime",
		Model:            model,
		Instructions:     cfg.SystemInstruction,
		OutputModalities: []string{"text"},
	}
	for _, fd := range cfg.Tools {
		t := functionTool{Type: "function", Name: fd.Name, Description: fd.Description}
		if fd.Parameters != nil {
			t.Parameters = fd.Parameters.JSONSchema()
		}
		sc.Tools = append(sc.Tools, t)
	}
	if len(sc.Tools) > 0 {
		sc.ToolChoice = "auto"
	}
	return sc
}

// createClientSecret mints an ephemeral key bound to the session config.
func createClientSecret(ctx context.Context, baseURL, apiKey string, cfg livesession.Config) (*SessionToken, error) {
	body, err := json.Marshal(clientSecretRequest{Session: newSessionConfig(cfg)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, "/realtime/client_secrets"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, data)
	}

	var token SessionToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if token.Value == "" {
		return nil, fmt.Errorf("empty client secret")
	}
	return &token, nil
}

// exchangeSDP sends the local SDP offer and returns the SDP answer.
func exchangeSDP(ctx context.Context, baseURL, offer, ephemeralKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, "/realtime/calls"), strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Error("SDP exchange failed", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}
	return string(body), nil
}

func endpoint(baseURL, path string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/") + path
}
