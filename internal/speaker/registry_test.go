package speaker

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/meetscribe/internal/audio"
	"github.com/GriffinCanCode/meetscribe/internal/backend"
)

const testRate = 16000

func tone(hz float64, amp float64, seconds float64) []byte {
	n := int(testRate * seconds)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*hz*float64(i)/testRate))
	}
	return audio.Int16ToBytes(samples)
}

func TestEmbed(t *testing.T) {
	emb := Embed(tone(220, 0.5, 1), testRate)
	if len(emb) != numBands {
		t.Fatalf("len = %d, want %d", len(emb), numBands)
	}
	var sum, sq float64
	for _, v := range emb {
		sum += v
		sq += v * v
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("embedding not centred, sum = %v", sum)
	}
	if math.Abs(sq-1) > 1e-9 {
		t.Errorf("embedding not unit length, |e|^2 = %v", sq)
	}
}

func TestEmbedRejects(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
	}{
		{"silence", make([]byte, testRate*2)},
		{"too short", tone(220, 0.5, 0.01)},
		{"whisper", tone(220, 0.001, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if emb := Embed(tt.pcm, testRate); emb != nil {
				t.Errorf("Embed() = %v, want nil", emb)
			}
		})
	}
}

func TestIdentifySpeaker(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "profiles.json"), 0)
	ctx := context.Background()

	low := backend.Audio{PCM: tone(150, 0.5, 1), SampleRate: testRate}
	high := backend.Audio{PCM: tone(2500, 0.5, 1), SampleRate: testRate}

	first, err := r.IdentifySpeaker(ctx, low)
	if err != nil || first == "" {
		t.Fatalf("IdentifySpeaker() = %q, %v", first, err)
	}
	again, _ := r.IdentifySpeaker(ctx, low)
	if again != first {
		t.Errorf("same voice got new id %q, want %q", again, first)
	}
	other, _ := r.IdentifySpeaker(ctx, high)
	if other == first {
		t.Error("different voice matched the first profile")
	}
	if n := len(r.Profiles()); n != 2 {
		t.Errorf("profiles = %d, want 2", n)
	}

	silent, err := r.IdentifySpeaker(ctx, backend.Audio{PCM: make([]byte, 4096), SampleRate: testRate})
	if err != nil || silent != "" {
		t.Errorf("silent segment = %q, %v; want empty id", silent, err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice_profiles", "voice_profiles.json")
	r := NewRegistry(path, DefaultTolerance)
	if err := r.Load(); err != nil {
		t.Fatalf("Load() on missing file = %v", err)
	}
	id := r.Match(Embed(tone(300, 0.5, 1), testRate))
	if !r.Dirty() {
		t.Error("Dirty() = false after new profile")
	}
	if err := r.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if r.Dirty() {
		t.Error("Dirty() = true after Save")
	}

	loaded := NewRegistry(path, DefaultTolerance)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.Match(Embed(tone(300, 0.5, 1), testRate)); got != id {
		t.Errorf("reloaded match = %q, want %q", got, id)
	}
}
