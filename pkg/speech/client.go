// Package speech is the HTTP client for the speech-to-text backend.
package speech

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

// Client talks to the transcription service.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// TranscriptSegment is one timed line of recognized speech.
type TranscriptSegment struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// Transcript is the full result of one transcription call.
type Transcript struct {
	LanguageDetected string              `json:"language_detected"`
	Segments         []TranscriptSegment `json:"segments"`
}

type transcribeRequest struct {
	MediaRef     string `json:"media_ref"`
	LanguageHint string `json:"language_hint,omitempty"`
}

// APIError is a non-2xx response from the backend. 4xx responses
// (unsupported format, bad media reference) are permanent; 5xx and
// transport errors are transient and worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech backend returned %d: %s", e.StatusCode, e.Message)
}

// Permanent reports whether the failure will not go away on retry.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// New creates a speech backend client. The timeout bounds a single
// transcription call so a stuck request cannot hold a worker slot
// indefinitely.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	log.Info().
		Str("base_url", baseURL).
		Dur("timeout", timeout).
		Msg("Initializing speech backend client")

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// Transcribe runs speech-to-text over one media item.
func (c *Client) Transcribe(ctx context.Context, mediaRef, languageHint string) (*Transcript, error) {
	startTime := time.Now()

	payload, err := json.Marshal(transcribeRequest{
		MediaRef:     mediaRef,
		LanguageHint: languageHint,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	url := c.baseURL + "/v1/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("media_ref", mediaRef).
		Str("language_hint", languageHint).
		Msg("Executing transcription request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("media_ref", mediaRef).
			Dur("duration", time.Since(startTime)).
			Msg("Error executing transcription request")
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		log.Error().
			Err(apiErr).
			Str("media_ref", mediaRef).
			Int("status_code", resp.StatusCode).
			Dur("duration", time.Since(startTime)).
			Msg("Speech backend returned error response")
		return nil, apiErr
	}

	var transcript Transcript
	if err := json.Unmarshal(respBody, &transcript); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	log.Info().
		Str("media_ref", mediaRef).
		Str("language_detected", transcript.LanguageDetected).
		Int("segments", len(transcript.Segments)).
		Dur("duration", time.Since(startTime)).
		Msg("Transcription completed")

	return &transcript, nil
}
