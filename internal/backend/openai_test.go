package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); !apperrors.IsCode(err, apperrors.CodeConfig) {
		t.Errorf("NewOpenAI() error = %v, want CONFIG", err)
	}
}

func TestGenerateSummary(t *testing.T) {
	var got chatRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Updated summary. "}}],"usage":{"total_tokens":57}}`)
	})

	comp, err := c.GenerateSummary(context.Background(), Prompt{System: "sys", User: "A. B."})
	if err != nil {
		t.Fatalf("GenerateSummary() error = %v", err)
	}
	if comp.Text != "Updated summary." || comp.TokensUsed != 57 {
		t.Errorf("completion = %+v", comp)
	}
	if got.Temperature != DefaultTemperature || got.Model != DefaultChatModel {
		t.Errorf("request model/temperature = %s/%v", got.Model, got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v, want system and user only", got.Messages)
	}
}

func TestGenerateSummaryErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode apperrors.Code
	}{
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached for gpt-4o"}}`, apperrors.CodeRateLimited},
		{"server error", http.StatusBadGateway, `upstream down`, apperrors.CodeUnavailable},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid model"}}`, apperrors.CodeBackend},
		{"no choices", http.StatusOK, `{"choices":[]}`, apperrors.CodeBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := c.GenerateSummary(context.Background(), Prompt{User: "x"})
			if !apperrors.IsCode(err, tt.wantCode) {
				t.Errorf("error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestTranscribeUploadsWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio_chunk_test.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if m := r.FormValue("model"); m != DefaultTranscribeModel {
			t.Errorf("model = %q", m)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "audio_chunk_test.wav" || string(data) != "RIFF....WAVE" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		io.WriteString(w, `{"text":" Hello team. "}`)
	})

	text, err := c.Transcribe(context.Background(), Audio{WAVPath: path})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "Hello team." {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	_, err := c.Transcribe(context.Background(), Audio{WAVPath: filepath.Join(t.TempDir(), "gone.wav")})
	if !apperrors.IsCode(err, apperrors.CodeIO) {
		t.Errorf("error = %v, want IO", err)
	}
}
