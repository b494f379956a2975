package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Synthesizer turns interviewer text into raw 16-bit little-endian PCM at
// the speaker's configured rate. Speech synthesis itself is external; the
// speaker only plays whatever the synthesizer returns.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SpeakerConfig configures PCM playback.
type SpeakerConfig struct {
	// SampleRate must match the synthesizer's output rate.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// BufferSize in bytes. Smaller means lower latency but more risk
	// of glitches.
	BufferSize int
}

// DefaultSpeakerConfig returns playback settings matching espeak-ng output.
func DefaultSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		SampleRate: 22050,
		Channels:   1,
		// ~100ms at 22.05kHz mono 16-bit.
		BufferSize: 4410,
	}
}

// Speaker voices interviewer text through the system audio output. A new
// utterance cuts off the previous one.
type Speaker struct {
	synth  Synthesizer
	otoCtx *oto.Context
	ready  chan struct{}

	mu     sync.Mutex
	player *oto.Player
	closed bool
}

// NewSpeaker initializes the audio output context. The returned speaker
// is usable immediately; playback waits for the context to become ready.
func NewSpeaker(synth Synthesizer, cfg SpeakerConfig) (*Speaker, error) {
	if synth == nil {
		return nil, errors.New("synthesizer must not be nil")
	}
	if cfg.SampleRate <= 0 {
		cfg = DefaultSpeakerConfig()
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	s := &Speaker{
		synth:  synth,
		otoCtx: otoCtx,
		ready:  make(chan struct{}),
	}
	go func() {
		<-ready
		close(s.ready)
	}()
	return s, nil
}

// Speak synthesizes the text and starts playback. It returns once playback
// has started, not once it finishes.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	pcm, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("speaker closed")
	}
	if s.player != nil {
		_ = s.player.Close()
	}
	player := s.otoCtx.NewPlayer(bytes.NewReader(pcm))
	s.player = player
	player.Play()
	return nil
}

// Close stops any active playback.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.player != nil {
		_ = s.player.Close()
		s.player = nil
	}
}

// CommandSynthesizer shells out to a text-to-speech binary that writes a
// WAV file to stdout, espeak-ng by default.
type CommandSynthesizer struct {
	// Path is the binary location. Defaults to espeak-ng.
	Path string

	// Args are passed before the text. Defaults request WAV on stdout.
	Args []string
}

// NewCommandSynthesizer returns a synthesizer backed by espeak-ng.
func NewCommandSynthesizer() *CommandSynthesizer {
	return &CommandSynthesizer{
		Path: "espeak-ng",
		Args: []string{"--stdout"},
	}
}

func (c *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	path := c.Path
	if path == "" {
		path = "espeak-ng"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("%s is required for speech output (install it and ensure it is in PATH)", path)
	}
	args := append(append([]string(nil), c.Args...), text)
	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	return stripWAVHeader(out.Bytes()), nil
}

// stripWAVHeader returns the PCM samples from a RIFF/WAVE byte stream,
// skipping ahead to the data chunk. Input without a RIFF header is
// returned unchanged.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.HasPrefix(b, []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	off := 12
	for off+8 <= len(b) {
		id := b[off : off+4]
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		if bytes.Equal(id, []byte("data")) {
			end := off + size
			if size <= 0 || end > len(b) {
				// Streaming writers leave the size blank; take the rest.
				end = len(b)
			}
			return b[off:end]
		}
		off += size
	}
	return nil
}
