package capture

import (
	"context"
	"sync"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
)

// State is the recording lifecycle phase.
type State int

const (
	// StateIdle means no recording cycle is in progress.
	StateIdle State = iota
	// StateArming means a cycle has been requested and the device is starting.
	StateArming
	// StateRecording means audio chunks are being accumulated.
	StateRecording
	// StateFinalizing means a stop was issued and the device flush is pending.
	StateFinalizing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArming:
		return "ARMING"
	case StateRecording:
		return "RECORDING"
	case StateFinalizing:
		return "FINALIZING"
	default:
		return "UNKNOWN"
	}
}

// StopReason says why a recording cycle is ending.
type StopReason int

const (
	// StopUserRequested means the candidate ended the answer early.
	StopUserRequested StopReason = iota
	// StopTimeout means the record-duration deadline fired.
	StopTimeout
	// StopSuperseded means the cycle belongs to a question that is no
	// longer active; its clip must be dropped without submission.
	StopSuperseded
)

// String returns a human-readable stop reason.
func (r StopReason) String() string {
	switch r {
	case StopUserRequested:
		return "USER_REQUESTED"
	case StopTimeout:
		return "TIMEOUT"
	case StopSuperseded:
		return "SUPERSEDED"
	default:
		return "UNKNOWN"
	}
}

// Clip is one assembled audio recording for a single question attempt.
type Clip struct {
	Data     []byte
	MIMEType string
}

// Stream is a session-long microphone stream. The device flush on stop is
// asynchronous: StopRecording only requests the end of a cycle, and the
// cycle's chunk channel closes once the final buffered chunk has been
// delivered.
type Stream interface {
	// Record begins a capture cycle and returns the cycle's chunk channel.
	Record() (<-chan []byte, error)

	// StopRecording requests the end of the active cycle. Idempotent.
	StopRecording()

	// Release stops the device and frees it. Safe to call repeatedly.
	Release()
}

// Microphone acquires the session's audio input device.
type Microphone interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Config holds recorder settings.
type Config struct {
	// RecordDuration bounds each recording cycle.
	RecordDuration time.Duration `json:"record_duration"`

	// MIMEType tags assembled clips for upload.
	MIMEType string `json:"mime_type"`

	// Format describes the PCM chunks the stream delivers.
	Format Format `json:"format"`
}

// DefaultConfig returns recorder settings matching the interview timing
// policy: spoken answers are capped at 60 seconds.
func DefaultConfig() Config {
	return Config{
		RecordDuration: 60 * time.Second,
		MIMEType:       "audio/pcm",
		Format:         DefaultFormat(),
	}
}

// Recorder drives recording cycles over an acquired microphone stream.
// At most one cycle is active at a time; starting while a cycle is in
// progress is a logged no-op. Each cycle ends with exactly one callback:
// onClip, onClipEmpty, or onDiscarded.
type Recorder struct {
	cfg Config
	clk clock.Clock

	mu       sync.Mutex
	stream   Stream
	state    State
	discard  bool
	reason   StopReason
	cycle    int
	deadline clock.Handle

	onClip      func(clip Clip)
	onClipEmpty func(reason StopReason)
	onDiscarded func()
	onLevel     func(rms float64)
	onDebug     func(category, message string)
}

// NewRecorder creates a recorder. Attach a stream before starting cycles.
func NewRecorder(cfg Config, clk clock.Clock) *Recorder {
	return &Recorder{
		cfg: cfg,
		clk: clk,
	}
}

// SetCallbacks sets the cycle event callbacks.
func (r *Recorder) SetCallbacks(
	onClip func(clip Clip),
	onClipEmpty func(reason StopReason),
	onDiscarded func(),
	onLevel func(rms float64),
	onDebug func(category, message string),
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClip = onClip
	r.onClipEmpty = onClipEmpty
	r.onDiscarded = onDiscarded
	r.onLevel = onLevel
	r.onDebug = onDebug
}

// Attach binds the acquired microphone stream for this session.
func (r *Recorder) Attach(stream Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream = stream
}

// State returns the current recording state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Active reports whether a cycle is in progress (recording or flushing).
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != StateIdle
}

// Start begins a recording cycle. It is a logged no-op when no stream is
// attached or a cycle is already in progress.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.stream == nil {
		r.mu.Unlock()
		r.debug("RECORD", "No microphone stream attached, ignoring start")
		return
	}
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		r.debug("RECORD", "Start ignored, cycle already "+state.String())
		return
	}
	r.state = StateArming
	r.discard = false
	r.cycle++
	cycle := r.cycle
	stream := r.stream
	r.mu.Unlock()

	ch, err := stream.Record()

	r.mu.Lock()
	if r.cycle != cycle {
		// A newer cycle owns the recorder. Flush whatever the device
		// produced so the old channel does not leak.
		r.mu.Unlock()
		if err == nil {
			stream.StopRecording()
			for range ch {
			}
		}
		return
	}
	if err != nil {
		r.state = StateIdle
		r.discard = false
		r.mu.Unlock()
		r.debug("RECORD", "Device refused to record: "+err.Error())
		return
	}
	if r.state != StateArming {
		// Stopped while the device was starting. The discard decision is
		// already latched; flush and settle through the terminal path.
		r.mu.Unlock()
		r.debug("RECORD", "Cycle stopped while arming, flushing device")
		stream.StopRecording()
		r.drain(cycle, ch)
		return
	}
	r.state = StateRecording
	r.deadline = r.clk.Schedule(r.cfg.RecordDuration, func() {
		r.Stop(StopTimeout)
	})
	r.mu.Unlock()

	r.debug("RECORD", "Recording started")
	go r.drain(cycle, ch)
}

// Stop ends the active cycle for the given reason. The device flush is
// asynchronous; the terminal callback fires once the chunk channel closes.
// A stop that lands while the device is still arming is latched and
// applied as soon as arming completes. Stopping when the recorder is idle
// or already finalizing is a no-op, which makes a second user stop click,
// or a timeout racing a user stop, harmless.
func (r *Recorder) Stop(reason StopReason) {
	r.mu.Lock()
	if r.state == StateArming {
		// The device is still starting. Latch the decision; Start's
		// post-record recheck flushes and settles the cycle.
		if reason == StopSuperseded {
			r.discard = true
		}
		r.reason = reason
		r.state = StateFinalizing
		r.mu.Unlock()
		r.debug("RECORD", "Stop("+reason.String()+") latched while arming")
		return
	}
	if r.state != StateRecording {
		state := r.state
		r.mu.Unlock()
		r.debug("RECORD", "Stop("+reason.String()+") ignored in state "+state.String())
		return
	}
	// The discard decision must be latched before the stop is issued:
	// the flush completes later and must not submit a superseded clip.
	if reason == StopSuperseded {
		r.discard = true
	}
	r.reason = reason
	r.state = StateFinalizing
	if r.deadline != nil {
		r.deadline.Cancel()
		r.deadline = nil
	}
	stream := r.stream
	r.mu.Unlock()

	r.debug("RECORD", "Stopping ("+reason.String()+"), flushing device")
	stream.StopRecording()
}

// drain accumulates chunks for one cycle and fires the terminal callback
// when the device flush completes.
func (r *Recorder) drain(cycle int, ch <-chan []byte) {
	var data []byte
	for chunk := range ch {
		if len(chunk) == 0 {
			continue
		}
		data = append(data, chunk...)
		r.mu.Lock()
		level := r.onLevel
		stale := r.cycle != cycle
		r.mu.Unlock()
		if stale {
			// A newer cycle owns the recorder; keep draining so the
			// device flush is not blocked, but report nothing.
			continue
		}
		if level != nil {
			level(RMSEnergy(chunk))
		}
	}

	r.mu.Lock()
	if r.cycle != cycle {
		r.mu.Unlock()
		return
	}
	if r.deadline != nil {
		r.deadline.Cancel()
		r.deadline = nil
	}
	discard := r.discard
	reason := r.reason
	r.discard = false
	r.state = StateIdle
	onClip := r.onClip
	onEmpty := r.onClipEmpty
	onDiscarded := r.onDiscarded
	r.mu.Unlock()

	switch {
	case discard:
		r.debug("RECORD", "Cycle superseded, clip discarded")
		if onDiscarded != nil {
			onDiscarded()
		}
	case len(data) == 0:
		r.debug("RECORD", "Recorded audio was empty")
		if onEmpty != nil {
			onEmpty(reason)
		}
	default:
		r.debug("RECORD", "Clip ready")
		if onClip != nil {
			onClip(Clip{Data: data, MIMEType: r.cfg.MIMEType})
		}
	}
}

func (r *Recorder) debug(category, message string) {
	r.mu.Lock()
	fn := r.onDebug
	r.mu.Unlock()
	if fn != nil {
		fn(category, message)
	}
}
