package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"notedeck/internal/domain"
)

var mimeByExtension = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

// TranscribeBatch sends a complete audio file to Deepgram's prerecorded
// endpoint and returns the utterance-level transcript.
func (p *Provider) TranscribeBatch(ctx context.Context, audioPath string) (domain.TranscriptionResult, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return domain.TranscriptionResult{}, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	endpoint, err := buildBatchURL(p.cfg)
	if err != nil {
		return domain.TranscriptionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, file)
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.cfg.APIKey)
	req.Header.Set("Content-Type", contentTypeFor(audioPath))

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("failed to read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.TranscriptionResult{}, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.TranscriptionResult{}, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	return toResult(parsed), nil
}

type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
			DetectedLanguage string `json:"detected_language"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

func toResult(parsed batchResponse) domain.TranscriptionResult {
	result := domain.TranscriptionResult{}

	for _, utterance := range parsed.Results.Utterances {
		text := strings.TrimSpace(utterance.Transcript)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, domain.TimedText{
			Start: utterance.Start,
			End:   utterance.End,
			Text:  text,
		})
	}

	if len(parsed.Results.Channels) > 0 {
		channel := parsed.Results.Channels[0]
		result.Language = channel.DetectedLanguage
		if len(channel.Alternatives) > 0 {
			result.FullText = strings.TrimSpace(channel.Alternatives[0].Transcript)
		}
	}

	// Some formats come back without utterance timings. Fall back to one
	// untimed segment so the transcript still lands somewhere visible.
	if len(result.Segments) == 0 && result.FullText != "" {
		result.Segments = []domain.TimedText{{Text: result.FullText}}
	}

	return result
}

func buildBatchURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	query.Set("utterances", "true")
	query.Set("punctuate", "true")
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	} else {
		query.Set("detect_language", "true")
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func contentTypeFor(path string) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}
