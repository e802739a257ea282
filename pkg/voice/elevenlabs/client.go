// Package elevenlabs implements voice.Synthesizer on the ElevenLabs
// text-to-speech HTTP API.
package elevenlabs

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

const defaultBaseURL = "https://api.elevenlabs.io/v1"

// defaultVoiceID matches the service's stock voice.
const defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Client is an ElevenLabs text-to-speech client.
type Client struct {
	apiKey  string
	voiceID string
	baseURL string
	http    *http.Client
}

// Config is the configuration for the ElevenLabs client.
type Config struct {
	// APIKey is required.
	APIKey string

	// VoiceID selects the voice; a stock voice is used when empty.
	VoiceID string

	// BaseURL overrides the API endpoint (for tests).
	BaseURL string

	// Timeout bounds each synthesis call. Defaults to 15s.
	Timeout time.Duration
}

// NewClient creates a new ElevenLabs client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		voiceID: voiceID,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize returns MP3 audio for the text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: "eleven_multilingual_v2",
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesis failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Close closes the client.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
