// Package mt is the HTTP client for the machine-translation backends.
// A deployment usually configures one paid, high-quality engine and a
// free local one; both speak the same two-endpoint contract.
package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to one translation backend.
type Client struct {
	httpClient      *http.Client
	name            string
	apiKey          string
	baseURL         string
	pricePerMillion float64
}

type batchRequest struct {
	Prompt string `json:"prompt"`
}

type batchResponse struct {
	Text string `json:"text"`
}

type singleRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
}

type singleResponse struct {
	Translation string `json:"translation"`
}

// New creates a translation backend client. A price of zero marks a
// free/local engine; its jobs report zero estimated cost.
func New(name, baseURL, apiKey string, pricePerMillionChars float64, timeout time.Duration) *Client {
	log.Info().
		Str("translator", name).
		Str("base_url", baseURL).
		Float64("price_per_million_chars", pricePerMillionChars).
		Dur("timeout", timeout).
		Msg("Initializing translation backend client")

	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		name:            name,
		apiKey:          apiKey,
		baseURL:         baseURL,
		pricePerMillion: pricePerMillionChars,
	}
}

// Name returns the configured backend name.
func (c *Client) Name() string { return c.name }

// PricePerMillionChars returns the backend's character price, zero for
// free engines.
func (c *Client) PricePerMillionChars() float64 { return c.pricePerMillion }

// TranslateBatch sends one free-form prompt covering a whole chunk of
// segments and returns the raw response text for the caller to parse.
func (c *Client) TranslateBatch(ctx context.Context, prompt string) (string, error) {
	var resp batchResponse
	err := c.post(ctx, "/v1/complete", batchRequest{Prompt: prompt}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// TranslateSingle translates one segment. Used as the per-segment
// fallback when a whole-chunk call fails.
func (c *Client) TranslateSingle(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var resp singleResponse
	err := c.post(ctx, "/v1/translate", singleRequest{
		Text:           text,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Translation, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out interface{}) error {
	startTime := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("translator", c.name).
			Str("endpoint", endpoint).
			Dur("duration", time.Since(startTime)).
			Msg("Error executing translation request")
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("translator", c.name).
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Dur("duration", time.Since(startTime)).
			Msg("Translation backend returned error response")
		return fmt.Errorf("translation backend %s returned %d: %s", c.name, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}

	log.Debug().
		Str("translator", c.name).
		Str("endpoint", endpoint).
		Dur("duration", time.Since(startTime)).
		Msg("Translation request completed")

	return nil
}
