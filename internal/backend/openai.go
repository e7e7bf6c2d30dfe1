package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/meetscribe/internal/audio"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	BaseURL         string
	APIKey          string
	ChatModel       string
	TranscribeModel string
	Temperature     float64
	HTTPClient      *http.Client
}

// OpenAI talks to the chat completions and audio transcription endpoints.
type OpenAI struct {
	cfg  OpenAIConfig
	http *http.Client
}

// NewOpenAI validates cfg and builds a client. A missing key is a CONFIG error.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.New(apperrors.CodeConfig, "openai api key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &OpenAI{cfg: cfg, http: client}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateSummary sends p as system, assistant and user messages. Empty
// roles are omitted.
func (c *OpenAI) GenerateSummary(ctx context.Context, p Prompt) (Completion, error) {
	ctx, span := trace.StartSpan(ctx, "openai.chat")
	defer span.End()
	span.SetAttr("model", c.cfg.ChatModel)

	req := chatRequest{Model: c.cfg.ChatModel, Temperature: c.cfg.Temperature}
	for _, m := range []chatMessage{{"system", p.System}, {"assistant", p.Assistant}, {"user", p.User}} {
		if strings.TrimSpace(m.Content) != "" {
			req.Messages = append(req.Messages, m)
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Completion{}, apperrors.Wrap(err, apperrors.CodeInternal, "encode chat request")
	}

	var resp chatResponse
	if err := c.do(ctx, "/chat/completions", "application/json", bytes.NewReader(body), &resp); err != nil {
		span.RecordError(err)
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, apperrors.New(apperrors.CodeBackend, "chat completion returned no choices")
	}
	span.SetAttr("tokens", resp.Usage.TotalTokens)
	return Completion{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Transcribe uploads the segment as a WAV file. When a.WAVPath is empty the
// PCM is encoded in memory.
func (c *OpenAI) Transcribe(ctx context.Context, a Audio) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai.transcribe")
	defer span.End()

	var (
		wav  []byte
		name = "audio.wav"
		err  error
	)
	if a.WAVPath != "" {
		wav, err = os.ReadFile(a.WAVPath)
		if err != nil {
			return "", apperrors.Wrapf(err, apperrors.CodeIO, "read %s", a.WAVPath)
		}
		name = filepath.Base(a.WAVPath)
	} else {
		wav = audio.EncodeWAV(a.PCM, a.SampleRate, a.Channels)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model", c.cfg.TranscribeModel); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "encode transcription request")
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "encode transcription request")
	}
	if _, err := fw.Write(wav); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "encode transcription request")
	}
	if err := mw.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "encode transcription request")
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, "/audio/transcriptions", mw.FormDataContentType(), &buf, &resp); err != nil {
		span.RecordError(err)
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *OpenAI) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	if tc, ok := trace.FromContext(ctx); ok {
		req.Header.Set(trace.TraceIDKey, tc.TraceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeUnavailable, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeBackend, "decode %s response", path)
	}
	return nil
}

func statusError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}

	code := apperrors.CodeBackend
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		code = apperrors.CodeRateLimited
	case resp.StatusCode >= 500:
		code = apperrors.CodeUnavailable
	}
	return apperrors.Newf(code, "POST %s: %s", path, msg).
		WithMetadata("status", fmt.Sprint(resp.StatusCode))
}
