package interview

import (
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
)

// SessionState represents the current state of the interview session.
type SessionState int

const (
	// StateIdle is the initial state before the interview starts.
	StateIdle SessionState = iota
	// StateStarting is while the service session and media devices are
	// being acquired.
	StateStarting
	// StateIntroducing is while the interviewer preamble plays.
	StateIntroducing
	// StateQuestioning is the question loop.
	StateQuestioning
	// StateCompleted is reached when all questions are answered.
	StateCompleted
	// StateLockedOut is terminal; the proctoring policy ended the session.
	StateLockedOut
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateIntroducing:
		return "INTRODUCING"
	case StateQuestioning:
		return "QUESTIONING"
	case StateCompleted:
		return "COMPLETED"
	case StateLockedOut:
		return "LOCKED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Config holds all configuration for an interview session.
type Config struct {
	// PrepDuration is the pause between reading a spoken question and
	// the start of recording.
	PrepDuration time.Duration `json:"prep_duration"`

	// RecordDuration bounds each spoken answer.
	RecordDuration time.Duration `json:"record_duration"`

	// CodingDuration bounds the coding round.
	CodingDuration time.Duration `json:"coding_duration"`

	// IntroDuration is how long the interviewer preamble plays before
	// the first question.
	IntroDuration time.Duration `json:"intro_duration"`

	// EventBufferSize is the event channel capacity. Events are dropped
	// when the consumer falls behind.
	EventBufferSize int `json:"event_buffer_size"`

	// Debug enables debug logging to stderr plus debug events.
	Debug bool `json:"debug"`

	Recorder capture.Config `json:"recorder"`
	Proctor  proctor.Config `json:"proctor"`
}

// DefaultConfig returns the standard interview timing policy: 10 seconds
// of prep and 60 seconds of recording per spoken question, a 10 minute
// coding round, and a 20 second introduction.
func DefaultConfig() Config {
	cfg := Config{
		PrepDuration:    10 * time.Second,
		RecordDuration:  60 * time.Second,
		CodingDuration:  600 * time.Second,
		IntroDuration:   20 * time.Second,
		EventBufferSize: 256,
		Recorder:        capture.DefaultConfig(),
		Proctor:         proctor.DefaultConfig(),
	}
	cfg.Recorder.RecordDuration = cfg.RecordDuration
	return cfg
}

// withDefaults fills zero values so a partially specified config behaves.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PrepDuration == 0 {
		c.PrepDuration = def.PrepDuration
	}
	if c.RecordDuration == 0 {
		c.RecordDuration = def.RecordDuration
	}
	if c.CodingDuration == 0 {
		c.CodingDuration = def.CodingDuration
	}
	if c.IntroDuration == 0 {
		c.IntroDuration = def.IntroDuration
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = def.EventBufferSize
	}
	if c.Recorder.MIMEType == "" {
		c.Recorder = def.Recorder
	}
	c.Recorder.RecordDuration = c.RecordDuration
	if c.Proctor.EvalInterval == 0 {
		c.Proctor = def.Proctor
	}
	return c
}
