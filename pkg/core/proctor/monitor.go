package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
)

// Detector analyzes one camera frame and yields at most one face's landmark
// set, or nil when no face is found.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]Point, error)
}

// FrameSource is an acquired camera stream.
type FrameSource interface {
	// Frames returns the stream's frame channel. The channel closes when
	// the source is released.
	Frames() <-chan []byte

	// Release stops the camera and frees it. Safe to call repeatedly.
	Release()
}

// Camera acquires the session's video input device.
type Camera interface {
	Acquire(ctx context.Context) (FrameSource, error)
}

// Config holds the gaze monitor policy.
type Config struct {
	// EvalInterval is the attention-judgment cadence, independent of how
	// fast the detector returns frames.
	EvalInterval time.Duration `json:"eval_interval"`

	// Staleness is how long the monitor trusts the last detector sample.
	// Older samples are treated as the candidate being away.
	Staleness time.Duration `json:"staleness"`

	// AwayGrace is how long sustained inattention is tolerated before a
	// warning is issued.
	AwayGrace time.Duration `json:"away_grace"`

	// WarningCooldown rate-limits consecutive warnings.
	WarningCooldown time.Duration `json:"warning_cooldown"`

	// MaxWarnings is the lockout threshold.
	MaxWarnings int `json:"max_warnings"`

	Classifier ClassifierConfig `json:"classifier"`
}

// DefaultConfig returns the standard proctoring policy.
func DefaultConfig() Config {
	return Config{
		EvalInterval:    1 * time.Second,
		Staleness:       2500 * time.Millisecond,
		AwayGrace:       2500 * time.Millisecond,
		WarningCooldown: 4 * time.Second,
		MaxWarnings:     5,
		Classifier:      DefaultClassifierConfig(),
	}
}

// Monitor feeds camera frames to the detector and judges attention on a
// fixed cadence. Frame submission and attention judgment are deliberately
// decoupled: a slow detector drops frames and eventually goes stale, which
// reads as "away", instead of stalling the session.
type Monitor struct {
	cfg Config
	clk clock.Clock
	det Detector
	cam Camera

	mu            sync.Mutex
	running       bool
	lockedOut     bool
	busy          bool
	onScreen      bool
	lastSampleAt  time.Time
	awaySince     time.Time
	lastWarningAt time.Time
	warnings      int
	source        FrameSource
	evalHandle    clock.Handle
	cancel        context.CancelFunc

	onWarning func(count, max int)
	onLockout func()
	onStatus  func(onScreen bool)
	onDebug   func(category, message string)
}

// NewMonitor creates a gaze monitor.
func NewMonitor(cfg Config, clk clock.Clock, cam Camera, det Detector) *Monitor {
	return &Monitor{
		cfg: cfg,
		clk: clk,
		cam: cam,
		det: det,
	}
}

// SetCallbacks sets the monitor event callbacks.
func (m *Monitor) SetCallbacks(
	onWarning func(count, max int),
	onLockout func(),
	onStatus func(onScreen bool),
	onDebug func(category, message string),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = onWarning
	m.onLockout = onLockout
	m.onStatus = onStatus
	m.onDebug = onDebug
}

// Start acquires the camera and begins the frame-feed loop and the
// attention evaluator. Starting an already-running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	source, err := m.cam.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring camera: %w", err)
	}

	feedCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		cancel()
		source.Release()
		return nil
	}
	m.running = true
	m.source = source
	m.cancel = cancel
	// Grant attention until the first detector sample lands.
	m.onScreen = true
	m.lastSampleAt = m.clk.Now()
	m.awaySince = time.Time{}
	m.lastWarningAt = time.Time{}
	m.evalHandle = m.clk.ScheduleRepeating(m.cfg.EvalInterval, m.evaluate)
	m.mu.Unlock()

	go m.feed(feedCtx, source)

	m.debug("GAZE", "Camera active, gaze monitor running")
	return nil
}

// Stop releases the camera and halts both loops. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	source := m.source
	cancel := m.cancel
	handle := m.evalHandle
	m.source = nil
	m.cancel = nil
	m.evalHandle = nil
	m.busy = false
	m.awaySince = time.Time{}
	m.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	if source != nil {
		source.Release()
	}
	m.debug("GAZE", "Gaze monitor stopped")
}

// Warnings returns the number of warnings issued so far.
func (m *Monitor) Warnings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warnings
}

// LockedOut reports whether the lockout threshold has been reached.
func (m *Monitor) LockedOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockedOut
}

// feed submits frames to the detector as fast as it can keep up. Frames
// arriving while a detection is in flight are dropped.
func (m *Monitor) feed(ctx context.Context, source FrameSource) {
	for frame := range source.Frames() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		if m.busy || !m.running {
			m.mu.Unlock()
			continue
		}
		m.busy = true
		m.mu.Unlock()

		go m.detect(ctx, frame)
	}
}

// detect runs one detector call and records the resulting attention sample.
func (m *Monitor) detect(ctx context.Context, frame []byte) {
	landmarks, err := m.det.Detect(ctx, frame)

	m.mu.Lock()
	m.busy = false
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.lastSampleAt = m.clk.Now()
	if err != nil {
		m.onScreen = false
	} else {
		m.onScreen = OnScreen(landmarks, m.cfg.Classifier)
	}
	m.mu.Unlock()

	if err != nil {
		m.debug("GAZE", "Detector error: "+err.Error())
	}
}

// evaluate is the fixed-cadence attention judgment.
func (m *Monitor) evaluate() {
	m.mu.Lock()
	if !m.running || m.lockedOut {
		m.mu.Unlock()
		return
	}

	now := m.clk.Now()
	stale := now.Sub(m.lastSampleAt) > m.cfg.Staleness
	attentive := !stale && m.onScreen

	if attentive {
		m.awaySince = time.Time{}
		status := m.onStatus
		m.mu.Unlock()
		if status != nil {
			status(true)
		}
		return
	}

	if m.awaySince.IsZero() {
		m.awaySince = now
		status := m.onStatus
		m.mu.Unlock()
		if status != nil {
			status(false)
		}
		return
	}

	if now.Sub(m.awaySince) < m.cfg.AwayGrace {
		m.mu.Unlock()
		return
	}
	m.awaySince = now

	// Warning rate-limit.
	if now.Sub(m.lastWarningAt) < m.cfg.WarningCooldown {
		m.mu.Unlock()
		return
	}
	m.lastWarningAt = now
	m.warnings++
	count := m.warnings
	warning := m.onWarning
	var lockout func()
	if count >= m.cfg.MaxWarnings && !m.lockedOut {
		m.lockedOut = true
		lockout = m.onLockout
	}
	m.mu.Unlock()

	m.debug("GAZE", fmt.Sprintf("Warning %d/%d issued", count, m.cfg.MaxWarnings))
	if warning != nil {
		warning(count, m.cfg.MaxWarnings)
	}
	if lockout != nil {
		m.debug("GAZE", "Warning limit reached, locking session")
		lockout()
	}
}

func (m *Monitor) debug(category, message string) {
	m.mu.Lock()
	fn := m.onDebug
	m.mu.Unlock()
	if fn != nil {
		fn(category, message)
	}
}
