package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amoralabs/amora/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	AudioDir        string
	PublicPath      string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
}

// ElevenLabsSynthesizer renders reply text to an MP3 artifact on local
// disk and returns the public URL it is served under. Failures are the
// caller's to swallow: a turn must never fail because voice did.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) (*ElevenLabsSynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, fmt.Errorf("elevenlabs voice id is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		cfg.AudioDir = "public"
	}
	if strings.TrimSpace(cfg.PublicPath) == "" {
		cfg.PublicPath = "/audio"
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost <= 0 {
		cfg.SimilarityBoost = 0.75
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &ElevenLabsSynthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty synthesis text")
	}

	audio, err := s.fetch(ctx, text)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("spouse_response_%d_%s.mp3", time.Now().UnixMilli(), uuid.NewString()[:8])
	path := filepath.Join(s.cfg.AudioDir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio artifact: %w", err)
	}

	return strings.TrimRight(s.cfg.PublicPath, "/") + "/" + name, nil
}

// fetch posts the TTS request, retrying once with backoff on a
// retryable upstream status.
func (s *ElevenLabsSynthesizer) fetch(ctx context.Context, text string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, 250*time.Millisecond, time.Second)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		audio, retryable, err := s.post(ctx, text)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *ElevenLabsSynthesizer) post(ctx context.Context, text string) (audio []byte, retryable bool, err error) {
	body, err := json.Marshal(map[string]any{
		"text": text,
		"voice_settings": map[string]any{
			"stability":        s.cfg.Stability,
			"similarity_boost": s.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("tts status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read tts response: %w", err)
	}
	if len(audio) == 0 {
		return nil, false, fmt.Errorf("tts returned empty audio")
	}
	return audio, false, nil
}
