package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/submit"
)

// fakeService is an in-memory interview service.
type fakeService struct {
	mu        sync.Mutex
	questions []*Question
	nextIdx   int
	texts     []string
	textQIDs  []string
	audioQIDs []string
	deletes   int
	submitErr error
}

func (f *fakeService) StartInterview(_ context.Context, _ []Role) (*StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &StartResult{SessionID: "sess_1", TotalQuestions: len(f.questions)}, nil
}

func (f *fakeService) NextQuestion(_ context.Context, _ string) (*Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextIdx >= len(f.questions) {
		return nil, nil
	}
	q := f.questions[f.nextIdx]
	f.nextIdx++
	return q, nil
}

func (f *fakeService) SubmitText(_ context.Context, _, questionID, answerText string) (*AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.texts = append(f.texts, answerText)
	f.textQIDs = append(f.textQIDs, questionID)
	return &AnswerResult{HasMoreQuestions: f.nextIdx < len(f.questions)}, nil
}

func (f *fakeService) SubmitAudio(_ context.Context, _, questionID string, _ capture.Clip) (*AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.audioQIDs = append(f.audioQIDs, questionID)
	return &AnswerResult{HasMoreQuestions: f.nextIdx < len(f.questions)}, nil
}

func (f *fakeService) Report(_ context.Context, _ string) (*Report, error) {
	return &Report{TotalQuestions: len(f.questions)}, nil
}

func (f *fakeService) Export(_ context.Context, _ string) ([]byte, error) {
	return []byte(`{"answers":[]}`), nil
}

func (f *fakeService) Delete(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeService) submissions() (texts []string, audioCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...), len(f.audioQIDs)
}

// fakeMicStream is a channel-fed capture.Stream.
type fakeMicStream struct {
	mu       sync.Mutex
	ch       chan []byte
	closed   bool
	released bool
}

func (s *fakeMicStream) Record() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan []byte, 32)
	s.closed = false
	return s.ch, nil
}

func (s *fakeMicStream) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil && !s.closed {
		close(s.ch)
		s.closed = true
	}
}

func (s *fakeMicStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *fakeMicStream) push(chunk []byte) {
	s.mu.Lock()
	ch := s.ch
	closed := s.closed
	s.mu.Unlock()
	if ch != nil && !closed {
		ch <- chunk
	}
}

func (s *fakeMicStream) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeMic struct {
	stream *fakeMicStream
	err    error
}

func (m *fakeMic) Acquire(_ context.Context) (capture.Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stream, nil
}

// fakeFrameSource never yields frames; attention comes from the monitor's
// initial grant plus the configured staleness window.
type fakeFrameSource struct {
	ch   chan []byte
	once sync.Once
}

func (s *fakeFrameSource) Frames() <-chan []byte { return s.ch }

func (s *fakeFrameSource) Release() {
	s.once.Do(func() { close(s.ch) })
}

type fakeCamera struct {
	src *fakeFrameSource
	err error
}

func (c *fakeCamera) Acquire(_ context.Context) (proctor.FrameSource, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.src, nil
}

type fakeDetector struct{}

func (fakeDetector) Detect(_ context.Context, _ []byte) ([]proctor.Point, error) {
	return nil, nil
}

type harness struct {
	svc    *fakeService
	clk    *clock.Fake
	stream *fakeMicStream
	sess   *Session
}

// newHarness builds a session over fakes. Gaze staleness is stretched so
// proctoring stays quiet unless a test opts in.
func newHarness(t *testing.T, questions []*Question, strictGaze bool) *harness {
	t.Helper()
	svc := &fakeService{questions: questions}
	clk := clock.NewFake()
	stream := &fakeMicStream{}

	cfg := DefaultConfig()
	if !strictGaze {
		cfg.Proctor.Staleness = 24 * time.Hour
	}

	sess, err := NewSession(cfg, Deps{
		Service:    svc,
		Clock:      clk,
		Microphone: &fakeMic{stream: stream},
		Camera:     &fakeCamera{src: &fakeFrameSource{ch: make(chan []byte)}},
		Detector:   fakeDetector{},
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return &harness{svc: svc, clk: clk, stream: stream, sess: sess}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func spokenQuestion(id string) *Question {
	return &Question{ID: id, Question: "Explain goroutine scheduling.", Role: "Backend Engineer", Difficulty: "medium"}
}

func codingQuestion(id string) *Question {
	return &Question{ID: id, Question: "Write working code that reverses a list.", Role: "coding_round", Difficulty: "hard"}
}

func TestSessionSpokenThenCodingFlow(t *testing.T) {
	h := newHarness(t, []*Question{spokenQuestion("q1"), codingQuestion("coding_1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, []Role{{Name: "Backend Engineer", Confidence: 0.9}}); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if got := h.sess.State(); got != StateIntroducing {
		t.Fatalf("Expected INTRODUCING after start, got %s", got)
	}

	// The intro runs for its fixed duration, then the first question loads.
	h.clk.Advance(20 * time.Second)
	waitFor(t, "first question", func() bool {
		q := h.sess.CurrentQuestion()
		return q != nil && q.ID == "q1"
	})
	if got := h.sess.State(); got != StateQuestioning {
		t.Fatalf("Expected QUESTIONING, got %s", got)
	}

	// Prep elapses and recording begins.
	h.clk.Advance(10 * time.Second)
	waitFor(t, "recording to start", func() bool {
		h.stream.mu.Lock()
		defer h.stream.mu.Unlock()
		return h.stream.ch != nil
	})

	h.stream.push([]byte{1, 2, 3, 4})
	h.sess.StopAnswer()
	waitFor(t, "audio submission and next question", func() bool {
		q := h.sess.CurrentQuestion()
		return q != nil && q.ID == "coding_1"
	})

	_, audio := h.svc.submissions()
	if audio != 1 {
		t.Fatalf("Expected 1 audio submission, got %d", audio)
	}

	h.sess.SetTypedAnswer("func reverse(xs []int) {}")
	h.sess.SubmitCoding()
	waitFor(t, "session completion", func() bool {
		return h.sess.State() == StateCompleted
	})

	texts, _ := h.svc.submissions()
	if len(texts) != 1 || texts[0] != "func reverse(xs []int) {}" {
		t.Errorf("Expected the typed coding answer, got %v", texts)
	}
	if !h.stream.isReleased() {
		t.Error("Expected microphone released after completion")
	}
	if h.sess.SessionID() == "" {
		t.Error("Session id must survive completion for report access")
	}
}

func TestSessionTimeoutSubmitsPlaceholderOnce(t *testing.T) {
	h := newHarness(t, []*Question{spokenQuestion("q1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	// Prep, then the full record window with the candidate saying nothing.
	h.clk.Advance(10 * time.Second)
	waitFor(t, "recording to start", func() bool {
		h.stream.mu.Lock()
		defer h.stream.mu.Unlock()
		return h.stream.ch != nil
	})
	h.clk.Advance(60 * time.Second)

	waitFor(t, "placeholder submission", func() bool {
		texts, _ := h.svc.submissions()
		return len(texts) == 1
	})
	texts, audio := h.svc.submissions()
	if texts[0] != submit.PlaceholderTimeout {
		t.Errorf("Expected timeout placeholder, got %q", texts[0])
	}
	if audio != 0 {
		t.Errorf("Expected no audio submission, got %d", audio)
	}

	// The deadline and the expiry raced; only one submission may exist.
	time.Sleep(50 * time.Millisecond)
	texts, _ = h.svc.submissions()
	if len(texts) != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", len(texts))
	}
	waitFor(t, "completion", func() bool { return h.sess.State() == StateCompleted })
}

func TestSessionLateClipWinsOverTimeoutFallback(t *testing.T) {
	h := newHarness(t, []*Question{spokenQuestion("q1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })
	h.clk.Advance(10 * time.Second)
	waitFor(t, "recording to start", func() bool {
		h.stream.mu.Lock()
		defer h.stream.mu.Unlock()
		return h.stream.ch != nil
	})

	// Audio exists when the deadline and the answer-window expiry fire
	// together; the recorded clip must win over the placeholder.
	h.stream.push([]byte{9, 8, 7, 6})
	h.clk.Advance(60 * time.Second)

	waitFor(t, "audio submission", func() bool {
		_, audio := h.svc.submissions()
		return audio == 1
	})
	time.Sleep(50 * time.Millisecond)
	texts, audio := h.svc.submissions()
	if audio != 1 || len(texts) != 0 {
		t.Errorf("Expected only the clip submission, got audio=%d texts=%v", audio, texts)
	}
}

func TestSessionStopWithoutAudioSubmitsStoppedPlaceholder(t *testing.T) {
	h := newHarness(t, []*Question{spokenQuestion("q1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	// Stop during prep, before any recording exists. A second stop click
	// must be a no-op.
	h.sess.StopAnswer()
	h.sess.StopAnswer()

	waitFor(t, "placeholder submission", func() bool {
		texts, _ := h.svc.submissions()
		return len(texts) == 1
	})
	texts, _ := h.svc.submissions()
	if texts[0] != submit.PlaceholderStoppedEarly {
		t.Errorf("Expected stopped-early placeholder, got %q", texts[0])
	}
	time.Sleep(50 * time.Millisecond)
	texts, _ = h.svc.submissions()
	if len(texts) != 1 {
		t.Errorf("Expected exactly 1 submission after double stop, got %d", len(texts))
	}
}

func TestSessionCodingEmptySubmitKeepsWindowArmed(t *testing.T) {
	h := newHarness(t, []*Question{codingQuestion("coding_1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	// Submitting with nothing typed is dropped, and the countdown must
	// keep running so the window can still expire.
	h.sess.SubmitCoding()
	texts, _ := h.svc.submissions()
	if len(texts) != 0 {
		t.Fatalf("Empty coding submit must be dropped, got %v", texts)
	}

	h.clk.Advance(600 * time.Second)
	waitFor(t, "timeout placeholder", func() bool {
		texts, _ := h.svc.submissions()
		return len(texts) == 1
	})
	texts, _ = h.svc.submissions()
	if texts[0] != submit.PlaceholderTimeout {
		t.Errorf("Expected timeout placeholder after expiry, got %q", texts[0])
	}
}

func TestSessionCodingFailureAllowsRetry(t *testing.T) {
	h := newHarness(t, []*Question{codingQuestion("coding_1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	h.svc.mu.Lock()
	h.svc.submitErr = errors.New("service unavailable")
	h.svc.mu.Unlock()

	h.sess.SetTypedAnswer("first try")
	h.sess.SubmitCoding()
	waitFor(t, "failed submission to settle", func() bool {
		return h.sess.coordinator.Status() == submit.StatusFailed
	})

	h.svc.mu.Lock()
	h.svc.submitErr = nil
	h.svc.mu.Unlock()

	h.sess.SubmitCoding()
	waitFor(t, "retry to succeed", func() bool {
		texts, _ := h.svc.submissions()
		return len(texts) == 1
	})
	texts, _ := h.svc.submissions()
	if texts[0] != "first try" {
		t.Errorf("Expected retried answer, got %q", texts[0])
	}
}

func TestSessionMicFailureDeletesServiceSession(t *testing.T) {
	svc := &fakeService{questions: []*Question{spokenQuestion("q1")}}
	clk := clock.NewFake()
	sess, err := NewSession(DefaultConfig(), Deps{
		Service:    svc,
		Clock:      clk,
		Microphone: &fakeMic{err: errors.New("mic access denied")},
		Camera:     &fakeCamera{src: &fakeFrameSource{ch: make(chan []byte)}},
		Detector:   fakeDetector{},
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer sess.Close()

	if err := sess.Start(context.Background(), nil); err == nil {
		t.Fatal("Expected start to fail without a microphone")
	}
	if got := sess.State(); got != StateIdle {
		t.Errorf("Expected IDLE after failed start, got %s", got)
	}
	svc.mu.Lock()
	deletes := svc.deletes
	svc.mu.Unlock()
	if deletes != 1 {
		t.Errorf("Expected the half-started session deleted, got %d deletes", deletes)
	}
}

func TestSessionLockoutTearsDownOnce(t *testing.T) {
	// Strict gaze: no frames ever arrive, so the detector signal goes
	// stale and warnings accumulate on the default policy.
	h := newHarness(t, []*Question{spokenQuestion("q1")}, true)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	// Warnings land every 6 seconds from the session start; the fifth
	// locks the interview.
	h.clk.Advance(10 * time.Second)
	waitFor(t, "lockout", func() bool { return h.sess.State() == StateLockedOut })

	if got := h.sess.Warnings(); got != 5 {
		t.Errorf("Expected 5 warnings at lockout, got %d", got)
	}
	if h.sess.CurrentQuestion() != nil {
		t.Error("Expected no active question after lockout")
	}
	if !h.stream.isReleased() {
		t.Error("Expected microphone released on lockout")
	}

	texts, audio := h.svc.submissions()
	if len(texts) != 0 || audio != 0 {
		t.Errorf("Lockout must not submit answers, got texts=%v audio=%d", texts, audio)
	}

	// More inattentive time changes nothing.
	h.clk.Advance(30 * time.Second)
	if got := h.sess.Warnings(); got != 5 {
		t.Errorf("Warnings grew after lockout: %d", got)
	}
	if got := h.sess.State(); got != StateLockedOut {
		t.Errorf("Lockout must be terminal, got %s", got)
	}
}

func TestSessionEndDeletesAndResets(t *testing.T) {
	h := newHarness(t, []*Question{spokenQuestion("q1")}, false)
	ctx := context.Background()

	if err := h.sess.Start(ctx, nil); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	h.clk.Advance(20 * time.Second)
	waitFor(t, "question", func() bool { return h.sess.CurrentQuestion() != nil })

	if err := h.sess.End(ctx); err != nil {
		t.Fatalf("Failed to end: %v", err)
	}
	if got := h.sess.State(); got != StateIdle {
		t.Errorf("Expected IDLE after end, got %s", got)
	}
	h.svc.mu.Lock()
	deletes := h.svc.deletes
	h.svc.mu.Unlock()
	if got := deletes; got != 1 {
		t.Errorf("Expected service delete on end, got %d", got)
	}
	if !h.stream.isReleased() {
		t.Error("Expected microphone released on end")
	}
}
