package audio

import (
	"encoding/binary"
	"time"
)

// Segment is one bounded unit of captured audio: the previous segment's
// overlap tail followed by every read since the last emit.
type Segment struct {
	Samples    []byte // PCM16 little-endian, interleaved
	Sequence   uint64
	CapturedAt time.Time
}

// SegmentConfig sizes segments in seconds of audio.
type SegmentConfig struct {
	SampleRate     int
	Channels       int
	FramesPerRead  int
	SegmentSeconds float64
	OverlapSeconds float64
}

func (c SegmentConfig) withDefaults() SegmentConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.FramesPerRead <= 0 {
		c.FramesPerRead = DefaultFramesPerRead
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = DefaultSegmentSeconds
	}
	if c.OverlapSeconds < 0 {
		c.OverlapSeconds = 0
	}
	return c
}

// ReadsPerSegment is the number of device reads that make up a segment.
func (c SegmentConfig) ReadsPerSegment() int {
	c = c.withDefaults()
	return max(1, int(float64(c.SampleRate)*c.SegmentSeconds/float64(c.FramesPerRead)))
}

// ReadsPerOverlap is the number of trailing reads carried into the next segment.
func (c SegmentConfig) ReadsPerOverlap() int {
	c = c.withDefaults()
	n := int(float64(c.SampleRate) * c.OverlapSeconds / float64(c.FramesPerRead))
	return min(n, c.ReadsPerSegment())
}

// Segmenter accumulates device reads into overlapping segments.
// It is not safe for concurrent use; the capture loop owns it.
type Segmenter struct {
	perSegment int
	perOverlap int
	overlap    [][]byte
	frames     [][]byte
	seq        uint64
	now        func() time.Time
}

// NewSegmenter creates a segmenter for cfg.
func NewSegmenter(cfg SegmentConfig) *Segmenter {
	return &Segmenter{
		perSegment: cfg.ReadsPerSegment(),
		perOverlap: cfg.ReadsPerOverlap(),
		now:        time.Now,
	}
}

// Push adds one read and returns a segment once enough reads have accumulated.
func (s *Segmenter) Push(read []byte) (Segment, bool) {
	s.frames = append(s.frames, read)
	if len(s.frames) < s.perSegment {
		return Segment{}, false
	}
	return s.emit(), true
}

// Flush emits whatever has accumulated since the last segment, with the
// pending overlap in front. Reports false when nothing new was captured.
func (s *Segmenter) Flush() (Segment, bool) {
	if len(s.frames) == 0 {
		return Segment{}, false
	}
	return s.emit(), true
}

func (s *Segmenter) emit() Segment {
	size := 0
	for _, f := range s.overlap {
		size += len(f)
	}
	for _, f := range s.frames {
		size += len(f)
	}
	buf := make([]byte, 0, size)
	for _, f := range s.overlap {
		buf = append(buf, f...)
	}
	for _, f := range s.frames {
		buf = append(buf, f...)
	}

	if s.perOverlap > 0 {
		tail := s.frames[max(0, len(s.frames)-s.perOverlap):]
		s.overlap = append([][]byte(nil), tail...)
	} else {
		s.overlap = nil
	}
	s.frames = nil
	s.seq++
	return Segment{Samples: buf, Sequence: s.seq, CapturedAt: s.now()}
}

// Int16ToBytes encodes samples as PCM16 little-endian.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}

// BytesToInt16 decodes PCM16 little-endian; a trailing odd byte is ignored.
func BytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return out
}
