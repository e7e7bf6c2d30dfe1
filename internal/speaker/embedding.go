package speaker

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"github.com/GriffinCanCode/meetscribe/internal/audio"
)

const (
	frameSize = 512
	numBands  = 24
	minHz     = 80.0
	maxHz     = 4000.0

	// silenceRMS is the level below which a segment carries no voice.
	silenceRMS = 0.01
)

// Embed computes a unit-length spectral fingerprint of PCM16 audio: the mean
// Hann-windowed magnitude spectrum, pooled into log-spaced bands between
// 80 Hz and 4 kHz, log-compressed and mean-centred. It returns nil for
// silence or audio shorter than one frame.
func Embed(pcm []byte, sampleRate int) []float64 {
	samples := audio.BytesToInt16(pcm)
	if len(samples) < frameSize || sampleRate <= 0 {
		return nil
	}
	signal := make([]float64, len(samples))
	for i, s := range samples {
		signal[i] = float64(s) / math.MaxInt16
	}
	if rms(signal) < silenceRMS {
		return nil
	}

	fft := fourier.NewFFT(frameSize)
	spectrum := make([]float64, frameSize/2+1)
	frame := make([]float64, frameSize)
	var coeffs []complex128
	frames := 0
	for off := 0; off+frameSize <= len(signal); off += frameSize / 2 {
		copy(frame, signal[off:off+frameSize])
		window.Hann(frame)
		coeffs = fft.Coefficients(coeffs, frame)
		for i, c := range coeffs {
			spectrum[i] += math.Hypot(real(c), imag(c))
		}
		frames++
	}
	floats.Scale(1/float64(frames), spectrum)

	edges := bandEdges(sampleRate)
	emb := make([]float64, numBands)
	for b := 0; b < numBands; b++ {
		lo, hi := edges[b], max(edges[b+1], edges[b]+1)
		emb[b] = math.Log1p(floats.Sum(spectrum[lo:hi]) / float64(hi-lo))
	}
	floats.AddConst(-floats.Sum(emb)/numBands, emb)

	n := floats.Norm(emb, 2)
	if n == 0 {
		return nil
	}
	floats.Scale(1/n, emb)
	return emb
}

// bandEdges returns numBands+1 FFT bin indices spaced logarithmically.
func bandEdges(sampleRate int) []int {
	binHz := float64(sampleRate) / frameSize
	top := min(maxHz, float64(sampleRate)/2)
	edges := make([]int, numBands+1)
	ratio := math.Log(top / minHz)
	for i := range edges {
		hz := minHz * math.Exp(ratio*float64(i)/numBands)
		edges[i] = min(int(hz/binHz), frameSize/2)
	}
	return edges
}

func rms(x []float64) float64 {
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// Distance is the Euclidean distance between two embeddings.
func Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}
