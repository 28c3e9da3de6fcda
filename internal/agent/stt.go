package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"triage-assistant/internal/observability"
)

var ErrEmptyAudio = errors.New("dictation audio is empty")

// clinicalPrompt biases the decoder towards the vocabulary of triage notes.
const clinicalPrompt = "Clinical triage note. Vitals: heart rate, SpO2, blood pressure in mmHg. " +
	"Common terms: dyspnea, tachycardia, troponin, ECG, myocardial infarction."

// WhisperClient sends dictated notes to a Whisper-compatible speech-to-text service.
type WhisperClient struct {
	url        string
	language   string
	prompt     string
	httpClient *http.Client
}

func NewWhisperClient(url string) *WhisperClient {
	return &WhisperClient{
		url:      url,
		language: "en",
		prompt:   clinicalPrompt,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithLanguage sets the ISO 639-1 hint sent with each upload. Empty lets the
// service detect the language itself.
func (c *WhisperClient) WithLanguage(lang string) *WhisperClient {
	c.language = lang
	return c
}

type sttResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// audioFileName picks an extension the service can decode from the sniffed type.
func audioFileName(data []byte) string {
	switch ct := http.DetectContentType(data); {
	case strings.HasPrefix(ct, "audio/wave"):
		return "note.wav"
	case ct == "application/ogg":
		return "note.ogg"
	case ct == "audio/mpeg":
		return "note.mp3"
	case ct == "video/webm":
		return "note.webm"
	default:
		return "note.wav"
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	if len(audioData) == 0 {
		return "", ErrEmptyAudio
	}
	log := observability.LoggerFromContext(ctx).With("component", "stt")
	start := time.Now()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	name := audioFileName(audioData)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audioData); err != nil {
		return "", err
	}
	if c.language != "" {
		writer.WriteField("language", c.language)
	}
	writer.WriteField("initial_prompt", c.prompt)
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn("dictation rejected", "status", resp.StatusCode)
		return "", fmt.Errorf("stt service returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding stt response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	log.Info("dictation transcribed",
		"file", name,
		"bytes", len(audioData),
		"language", result.Language,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}
