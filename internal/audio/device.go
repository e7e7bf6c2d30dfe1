// Package audio captures microphone input and cuts it into overlapping
// segments for transcription.
package audio

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
	Source            string // "user", "system" or ""
}

// DeviceConfig selects and opens an input device.
type DeviceConfig struct {
	// Name is matched case-insensitively as a substring. Empty picks the
	// system default input.
	Name          string
	SampleRate    int
	Channels      int
	FramesPerRead int
}

// Device reads PCM16 frames from a PortAudio input stream.
type Device struct {
	cfg    DeviceConfig
	buf    []int16
	stream *portaudio.Stream
	name   string

	mu        sync.Mutex
	opened    bool
	suspended bool
}

// NewDevice prepares a device; nothing is opened until Open.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.FramesPerRead <= 0 {
		cfg.FramesPerRead = DefaultFramesPerRead
	}
	return &Device{cfg: cfg}
}

// Name returns the opened device name.
func (d *Device) Name() string { return d.name }

// Open initializes PortAudio and starts the input stream.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDevice, "initialize portaudio")
	}

	dev, err := d.selectDevice()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	d.buf = make([]int16, d.cfg.FramesPerRead*d.cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: d.cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(d.cfg.SampleRate),
		FramesPerBuffer: d.cfg.FramesPerRead,
	}

	stream, err := portaudio.OpenStream(params, d.buf)
	if err != nil {
		portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CodeDevice, "open stream on %s", dev.Name)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return apperrors.Wrapf(err, apperrors.CodeDevice, "start stream on %s", dev.Name)
	}

	d.stream = stream
	d.name = dev.Name
	d.opened = true
	slog.Info("audio device opened", "device", dev.Name, "sample_rate", d.cfg.SampleRate, "channels", d.cfg.Channels)
	return nil
}

func (d *Device) selectDevice() (*portaudio.DeviceInfo, error) {
	if d.cfg.Name == "" {
		if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil {
			return dev, nil
		}
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDevice, "list devices")
	}

	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < d.cfg.Channels {
			continue
		}
		if d.cfg.Name != "" {
			if containsIgnoreCase(dev.Name, d.cfg.Name) {
				return dev, nil
			}
			continue
		}
		if classifyDevice(dev.Name) != "user" {
			continue
		}
		if best == nil || preferDevice(dev.Name, best.Name) {
			best = dev
		}
	}
	if best == nil {
		if d.cfg.Name != "" {
			return nil, apperrors.Newf(apperrors.CodeDevice, "no input device matching %q", d.cfg.Name)
		}
		return nil, apperrors.New(apperrors.CodeDevice, "no input device available")
	}
	return best, nil
}

// Read blocks for one buffer of frames. Input overflow is logged and the
// frames are still returned.
func (d *Device) Read() ([]byte, error) {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return nil, apperrors.New(apperrors.CodeDevice, "device not open")
	}

	if err := stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, apperrors.Wrap(err, apperrors.CodeDevice, "read frames")
		}
		slog.Debug("audio input overflowed", "device", d.name)
	}
	return Int16ToBytes(d.buf), nil
}

// Suspend stops the stream so nothing is buffered while capture is paused.
func (d *Device) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened || d.suspended {
		return nil
	}
	if err := d.stream.Stop(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDevice, "stop stream")
	}
	d.suspended = true
	return nil
}

// Resume restarts a suspended stream.
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened || !d.suspended {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDevice, "restart stream")
	}
	d.suspended = false
	return nil
}

// Close stops the stream and releases PortAudio. Safe to call twice.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return nil
	}
	d.opened = false

	var errs []error
	if !d.suspended {
		if err := d.stream.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	d.suspended = false
	if err := d.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	d.stream = nil
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDevice, "close device")
	}
	return nil
}

// ListDevices enumerates input-capable devices.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDevice, "initialize portaudio")
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDevice, "list devices")
	}
	var defName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defName = def.Name
	}

	out := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			Default:           dev.Name == defName,
			Source:            classifyDevice(dev.Name),
		})
	}
	return out, nil
}

// classifyDevice tags loopback devices as "system" and microphones as "user".
func classifyDevice(name string) string {
	systemKeywords := []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	for _, kw := range systemKeywords {
		if containsIgnoreCase(name, kw) {
			return "system"
		}
	}

	micKeywords := []string{"microphone", "input", "mic", "built-in", "headset"}
	for _, kw := range micKeywords {
		if containsIgnoreCase(name, kw) {
			return "user"
		}
	}
	return ""
}

// preferDevice reports whether name beats current as the default microphone.
func preferDevice(name, current string) bool {
	for _, p := range []string{"macbook", "built-in"} {
		if containsIgnoreCase(name, p) && !containsIgnoreCase(current, p) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
