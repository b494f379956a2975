package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
)

// fakeStream is a channel-fed microphone stream for recorder tests. When
// armSignal/armGate are set, Record announces itself and then blocks until
// the gate closes, so tests can act while the device is still arming.
type fakeStream struct {
	mu        sync.Mutex
	ch        chan []byte
	recordErr error
	records   int
	stops     int
	closed    bool

	armSignal chan struct{}
	armGate   chan struct{}
}

func (s *fakeStream) Record() (<-chan []byte, error) {
	if s.armSignal != nil {
		s.armSignal <- struct{}{}
	}
	if s.armGate != nil {
		<-s.armGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	s.ch = make(chan []byte, 32)
	s.closed = false
	s.records++
	return s.ch, nil
}

func (s *fakeStream) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.ch != nil && !s.closed {
		close(s.ch)
		s.closed = true
	}
}

func (s *fakeStream) Release() {}

func (s *fakeStream) push(chunk []byte) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	ch <- chunk
}

// outcome captures the terminal callback of one recording cycle.
type outcome struct {
	clips    []Clip
	empties  []StopReason
	discards int
	levels   []float64
	mu       sync.Mutex
	done     chan struct{}
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{}, 8)}
}

func (o *outcome) bind(r *Recorder) {
	r.SetCallbacks(
		func(clip Clip) {
			o.mu.Lock()
			o.clips = append(o.clips, clip)
			o.mu.Unlock()
			o.done <- struct{}{}
		},
		func(reason StopReason) {
			o.mu.Lock()
			o.empties = append(o.empties, reason)
			o.mu.Unlock()
			o.done <- struct{}{}
		},
		func() {
			o.mu.Lock()
			o.discards++
			o.mu.Unlock()
			o.done <- struct{}{}
		},
		func(rms float64) {
			o.mu.Lock()
			o.levels = append(o.levels, rms)
			o.mu.Unlock()
		},
		nil,
	)
}

func (o *outcome) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cycle to finish")
	}
}

func TestRecorderClipReady(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	if got := rec.State(); got != StateRecording {
		t.Fatalf("Expected RECORDING after start, got %s", got)
	}

	stream.push([]byte{1, 2})
	stream.push([]byte{3, 4})
	rec.Stop(StopUserRequested)
	out.wait(t)

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.clips) != 1 {
		t.Fatalf("Expected 1 clip, got %d", len(out.clips))
	}
	clip := out.clips[0]
	if string(clip.Data) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("Clip data not accumulated in order: %v", clip.Data)
	}
	if clip.MIMEType != "audio/pcm" {
		t.Errorf("Expected audio/pcm MIME type, got %s", clip.MIMEType)
	}
	if len(out.empties) != 0 || out.discards != 0 {
		t.Errorf("Expected exactly one terminal callback, empties=%d discards=%d",
			len(out.empties), out.discards)
	}
	if rec.State() != StateIdle {
		t.Errorf("Expected IDLE after cycle, got %s", rec.State())
	}
}

func TestRecorderEmptyClipCarriesReason(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	rec.Stop(StopUserRequested)
	out.wait(t)

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.empties) != 1 {
		t.Fatalf("Expected 1 empty-clip callback, got %d", len(out.empties))
	}
	if out.empties[0] != StopUserRequested {
		t.Errorf("Expected USER_REQUESTED reason, got %s", out.empties[0])
	}
	if len(out.clips) != 0 {
		t.Errorf("Expected no clip for empty cycle, got %d", len(out.clips))
	}
}

func TestRecorderSupersededDiscardsClip(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	stream.push([]byte{9, 9, 9})
	rec.Stop(StopSuperseded)
	out.wait(t)

	out.mu.Lock()
	defer out.mu.Unlock()
	if out.discards != 1 {
		t.Fatalf("Expected 1 discard, got %d", out.discards)
	}
	if len(out.clips) != 0 {
		t.Errorf("Superseded clip must not be delivered, got %d clips", len(out.clips))
	}
	if len(out.empties) != 0 {
		t.Errorf("Superseded clip must not report empty, got %d", len(out.empties))
	}
}

func TestRecorderStopWhileArmingDiscardsCycle(t *testing.T) {
	clk := clock.NewFake()
	stream := &fakeStream{
		armSignal: make(chan struct{}, 1),
		armGate:   make(chan struct{}),
	}
	rec := NewRecorder(DefaultConfig(), clk)
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	started := make(chan struct{})
	go func() {
		rec.Start()
		close(started)
	}()

	// The supersede lands while the device is still starting.
	<-stream.armSignal
	rec.Stop(StopSuperseded)
	close(stream.armGate)
	<-started
	out.wait(t)

	out.mu.Lock()
	if out.discards != 1 {
		t.Fatalf("Expected 1 discard, got %d", out.discards)
	}
	if len(out.clips) != 0 || len(out.empties) != 0 {
		t.Fatalf("Superseded arming cycle must not submit: clips=%d empties=%d",
			len(out.clips), len(out.empties))
	}
	out.mu.Unlock()

	if rec.State() != StateIdle {
		t.Fatalf("Expected IDLE after discard, got %s", rec.State())
	}
	if clk.Pending() != 0 {
		t.Fatalf("Expected no armed deadline, got %d pending timers", clk.Pending())
	}

	// The recorder is reusable for the next question.
	rec.Start()
	if got := rec.State(); got != StateRecording {
		t.Fatalf("Expected RECORDING after restart, got %s", got)
	}
	stream.push([]byte{9})
	rec.Stop(StopUserRequested)
	out.wait(t)
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.clips) != 1 {
		t.Fatalf("Expected 1 clip from the fresh cycle, got %d", len(out.clips))
	}
}

func TestRecorderDoubleStopIsNoOp(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	stream.push([]byte{1})
	rec.Stop(StopUserRequested)
	rec.Stop(StopUserRequested)
	rec.Stop(StopTimeout)
	out.wait(t)

	out.mu.Lock()
	total := len(out.clips) + len(out.empties) + out.discards
	out.mu.Unlock()
	if total != 1 {
		t.Errorf("Expected exactly one terminal callback, got %d", total)
	}

	select {
	case <-out.done:
		t.Error("Second terminal callback fired after repeated stops")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecorderDeadlineStopsCycle(t *testing.T) {
	stream := &fakeStream{}
	clk := clock.NewFake()
	rec := NewRecorder(DefaultConfig(), clk)
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	stream.push([]byte{5, 6})

	clk.Advance(60 * time.Second)
	out.wait(t)

	stream.mu.Lock()
	stops := stream.stops
	stream.mu.Unlock()
	if stops != 1 {
		t.Errorf("Expected deadline to stop the device once, got %d stops", stops)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.clips) != 1 {
		t.Fatalf("Expected clip from timed-out cycle, got %d", len(out.clips))
	}
}

func TestRecorderDeadlineEmptyReportsTimeout(t *testing.T) {
	stream := &fakeStream{}
	clk := clock.NewFake()
	rec := NewRecorder(DefaultConfig(), clk)
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	clk.Advance(60 * time.Second)
	out.wait(t)

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.empties) != 1 || out.empties[0] != StopTimeout {
		t.Fatalf("Expected empty clip tagged TIMEOUT, got %v", out.empties)
	}
}

func TestRecorderStartRequiresStream(t *testing.T) {
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Start()
	if rec.State() != StateIdle {
		t.Errorf("Start without stream must stay IDLE, got %s", rec.State())
	}
}

func TestRecorderStartWhileActiveIgnored(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	rec.Start()

	stream.mu.Lock()
	records := stream.records
	stream.mu.Unlock()
	if records != 1 {
		t.Errorf("Expected a single device record call, got %d", records)
	}

	rec.Stop(StopUserRequested)
	out.wait(t)
}

func TestRecorderDeviceErrorReturnsToIdle(t *testing.T) {
	stream := &fakeStream{recordErr: errors.New("device busy")}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)

	rec.Start()
	if rec.State() != StateIdle {
		t.Errorf("Expected IDLE after device error, got %s", rec.State())
	}
}

func TestRecorderEmitsAudioLevels(t *testing.T) {
	stream := &fakeStream{}
	rec := NewRecorder(DefaultConfig(), clock.NewFake())
	rec.Attach(stream)
	out := newOutcome()
	out.bind(rec)

	rec.Start()
	// A loud 16-bit sample pair.
	stream.push([]byte{0x00, 0x40, 0x00, 0x40})
	rec.Stop(StopUserRequested)
	out.wait(t)

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.levels) == 0 {
		t.Fatal("Expected at least one audio level sample")
	}
	if out.levels[0] <= 0 {
		t.Errorf("Expected positive RMS for non-silent audio, got %f", out.levels[0])
	}
}
