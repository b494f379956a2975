// Package device provides the hardware-facing implementations of the
// capture and proctor device interfaces: a malgo microphone, an ffmpeg
// camera, and an oto speaker.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
)

// MicConfig configures the microphone capture device.
type MicConfig struct {
	// Format is the PCM format delivered to consumers.
	Format capture.Format

	// PeriodMillis is the device callback period.
	PeriodMillis int

	// ChunkBuffer is the capacity of the chunk channel handed out by
	// Record. Chunks are dropped when the consumer falls behind.
	ChunkBuffer int
}

// DefaultMicConfig returns the microphone settings used for interviews.
func DefaultMicConfig() MicConfig {
	return MicConfig{
		Format:       capture.DefaultFormat(),
		PeriodMillis: 20,
		ChunkBuffer:  64,
	}
}

// Mic opens the system default capture device through malgo.
type Mic struct {
	cfg MicConfig
}

// NewMic returns a microphone backed by the default capture device.
func NewMic(cfg MicConfig) *Mic {
	if cfg.Format.SampleRate <= 0 {
		cfg.Format = capture.DefaultFormat()
	}
	if cfg.PeriodMillis <= 0 {
		cfg.PeriodMillis = 20
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = 64
	}
	return &Mic{cfg: cfg}
}

// Acquire initializes the audio context and starts the capture device.
// The device runs for the lifetime of the returned stream; Record only
// routes its output into a fresh chunk channel.
func (m *Mic) Acquire(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	s := &micStream{
		malgoCtx: malgoCtx,
		buffer:   m.cfg.ChunkBuffer,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.cfg.Format.Channels)
	deviceConfig.SampleRate = uint32(m.cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.cfg.PeriodMillis)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			s.push(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	return s, nil
}

// micStream keeps the capture device running across recording cycles and
// routes device callbacks into the cycle's chunk channel.
type micStream struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	buffer   int

	mu       sync.Mutex
	active   chan []byte
	released bool
}

// push is called from the malgo data callback. It must not block.
func (s *micStream) push(p []byte) {
	if len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	chunk := append([]byte(nil), p...)
	select {
	case s.active <- chunk:
	default:
		// Consumer fell behind; drop rather than stall the device.
	}
}

func (s *micStream) Record() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, errors.New("microphone released")
	}
	if s.active != nil {
		close(s.active)
	}
	ch := make(chan []byte, s.buffer)
	s.active = ch
	return ch, nil
}

func (s *micStream) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		close(s.active)
		s.active = nil
	}
}

func (s *micStream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	if s.active != nil {
		close(s.active)
		s.active = nil
	}
	s.mu.Unlock()

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
	}
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
	}
}
