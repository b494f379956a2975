// Package interview drives a proctored, timed interview session: it
// sequences questions from the interview service, captures spoken or typed
// answers within their time budgets, and guarantees exactly one submission
// per question no matter which trigger fires first.
package interview

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/proctor"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/submit"
)

// Service is the interface to the remote interview service.
type Service interface {
	// StartInterview opens a session for the detected roles.
	StartInterview(ctx context.Context, roles []Role) (*StartResult, error)

	// NextQuestion fetches the next question, or nil when the session
	// is exhausted.
	NextQuestion(ctx context.Context, sessionID string) (*Question, error)

	// SubmitText posts a typed or placeholder answer.
	SubmitText(ctx context.Context, sessionID, questionID, answerText string) (*AnswerResult, error)

	// SubmitAudio uploads a recorded answer.
	SubmitAudio(ctx context.Context, sessionID, questionID string, clip capture.Clip) (*AnswerResult, error)

	// Report fetches the final evaluation.
	Report(ctx context.Context, sessionID string) (*Report, error)

	// Export fetches the raw answers document.
	Export(ctx context.Context, sessionID string) ([]byte, error)

	// Delete tears the session down on the service side.
	Delete(ctx context.Context, sessionID string) error
}

// Speaker voices interviewer text. Implementations must not block for the
// duration of playback.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Deps bundles the session's collaborators.
type Deps struct {
	Service    Service
	Clock      clock.Clock
	Microphone capture.Microphone
	Camera     proctor.Camera
	Detector   proctor.Detector

	// Speaker is optional; without one the session runs silently.
	Speaker Speaker

	// Metrics is optional.
	Metrics *Metrics
}

// Session is the orchestrator for one candidate's interview.
type Session struct {
	config Config
	clk    clock.Clock
	svc    Service
	mic    capture.Microphone
	speak  Speaker

	recorder    *capture.Recorder
	monitor     *proctor.Monitor
	coordinator *submit.Coordinator
	metrics     *Metrics

	mu            sync.Mutex
	state         SessionState
	sessionID     string
	roles         []Role
	question      *Question
	questionIndex int
	total         int
	typedAnswer   string
	stopRequested bool
	locked        bool
	startedAt     time.Time
	micStream     capture.Stream

	introHandle clock.Handle
	prepHandle  clock.Handle
	tickHandle  clock.Handle
	remaining   int

	events chan Event
	done   chan struct{}
	closed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	debugEnabled bool
}

// NewSession creates an interview session.
func NewSession(config Config, deps Deps) (*Session, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("interview: Service is required")
	}
	if deps.Microphone == nil {
		return nil, fmt.Errorf("interview: Microphone is required")
	}
	if deps.Camera == nil || deps.Detector == nil {
		return nil, fmt.Errorf("interview: Camera and Detector are required")
	}
	config = config.withDefaults()

	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:       config,
		clk:          clk,
		svc:          deps.Service,
		mic:          deps.Microphone,
		speak:        deps.Speaker,
		metrics:      deps.Metrics,
		state:        StateIdle,
		events:       make(chan Event, config.EventBufferSize),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		debugEnabled: config.Debug,
	}

	s.recorder = capture.NewRecorder(config.Recorder, clk)
	s.recorder.SetCallbacks(
		s.onClip,
		s.onClipEmpty,
		s.onClipDiscarded,
		s.onAudioLevel,
		s.debug,
	)

	s.monitor = proctor.NewMonitor(config.Proctor, clk, deps.Camera, deps.Detector)
	s.monitor.SetCallbacks(
		s.onGazeWarning,
		s.onLockout,
		s.onGazeStatus,
		s.debug,
	)

	s.coordinator = submit.NewCoordinator(&serviceSender{session: s})
	s.coordinator.SetCallbacks(
		s.onSubmitOutcome,
		s.onSubmitError,
		s.debug,
	)

	return s, nil
}

// Events returns the session event channel. Events are dropped when the
// consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the service session id, empty before Start succeeds.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// CurrentQuestion returns the active question, nil between questions.
func (s *Session) CurrentQuestion() *Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}

// Warnings returns the proctoring warning count.
func (s *Session) Warnings() int {
	return s.monitor.Warnings()
}

// Start opens the service session and acquires both media devices. If
// either device fails, the service session is deleted and the session
// returns to idle.
func (s *Session) Start(ctx context.Context, roles []Role) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("interview: cannot start from state %s", state)
	}
	s.state = StateStarting
	s.roles = roles
	s.mu.Unlock()
	s.emit(&StateChangedEvent{From: StateIdle, To: StateStarting})

	result, err := s.svc.StartInterview(ctx, roles)
	if err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("starting interview: %w", err)
	}

	s.mu.Lock()
	s.sessionID = result.SessionID
	s.total = result.TotalQuestions
	s.startedAt = s.clk.Now()
	s.mu.Unlock()
	s.debug("SESSION", fmt.Sprintf("Interview started, %d questions queued", result.TotalQuestions))

	stream, err := s.mic.Acquire(ctx)
	if err != nil {
		s.abortStart(ctx)
		return fmt.Errorf("acquiring microphone: %w", err)
	}

	if err := s.monitor.Start(ctx); err != nil {
		stream.Release()
		s.abortStart(ctx)
		return fmt.Errorf("starting gaze monitor: %w", err)
	}

	s.mu.Lock()
	s.micStream = stream
	s.mu.Unlock()
	s.recorder.Attach(stream)
	s.metrics.recordSessionStart()

	s.emit(&SessionStartedEvent{SessionID: result.SessionID, TotalQuestions: result.TotalQuestions})
	s.startIntro()
	return nil
}

// abortStart deletes the half-started service session and returns to idle.
// Both devices are required; a session without proctoring or audio is not
// allowed to proceed.
func (s *Session) abortStart(ctx context.Context) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.sessionID = ""
	s.total = 0
	s.mu.Unlock()

	if sessionID != "" {
		if err := s.svc.Delete(ctx, sessionID); err != nil {
			s.debug("SESSION", "Cleanup delete failed: "+err.Error())
		}
	}
	s.monitor.Stop()
	s.setState(StateIdle)
}

// startIntro plays the interviewer preamble, then loads the first question.
func (s *Session) startIntro() {
	s.setState(StateIntroducing)

	s.mu.Lock()
	roles := s.roles
	s.mu.Unlock()
	text := introText(roles)

	s.emit(&IntroStartedEvent{Text: text, Duration: s.config.IntroDuration})
	s.say(text)

	s.mu.Lock()
	s.introHandle = s.clk.Schedule(s.config.IntroDuration, func() {
		go s.loadNextQuestion()
	})
	s.mu.Unlock()
}

// introText builds the spoken preamble from the detected role names.
func introText(roles []Role) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return "Hello! I'm your interviewer today. " +
		"We'll go through a quick warm-up and then technical questions for " +
		strings.Join(names, ", ") + ". " +
		"Technical responses are spoken with 60 seconds each, followed by a 10-minute coding round. " +
		"We'll begin in a moment."
}

// loadNextQuestion fetches the next question and installs it, or completes
// the session when none remain.
func (s *Session) loadNextQuestion() {
	s.mu.Lock()
	sessionID := s.sessionID
	locked := s.locked
	s.mu.Unlock()
	if sessionID == "" || locked || s.closed.Load() {
		return
	}

	q, err := s.svc.NextQuestion(s.ctx, sessionID)
	if err != nil {
		s.emit(&ErrorEvent{Message: "Question fetch failed: " + err.Error()})
		return
	}
	if q == nil {
		s.complete()
		return
	}
	s.setQuestion(q)
}

// setQuestion installs a question. Every timer belonging to the previous
// question is cancelled and any in-flight recording is superseded before
// the new question becomes visible to any trigger.
func (s *Session) setQuestion(q *Question) {
	s.mu.Lock()
	if s.locked && q != nil {
		s.mu.Unlock()
		return
	}
	s.cancelTimersLocked()
	s.question = q
	s.stopRequested = false
	s.typedAnswer = ""
	if q != nil {
		s.questionIndex++
	}
	index := s.questionIndex
	s.mu.Unlock()

	// The previous question's clip, if any, must never be submitted.
	s.recorder.Stop(capture.StopSuperseded)

	if q == nil {
		return
	}
	s.coordinator.BindQuestion(q.ID)
	s.setState(StateQuestioning)

	kind := q.Kind()
	s.metrics.recordQuestion(kind)
	s.emit(&QuestionPresentedEvent{Index: index, Question: q, Kind: kind.String()})

	if kind == KindCoding {
		s.say("Coding round started. You have ten minutes. Submit when ready.")
		s.armQuestionTimer(s.config.CodingDuration)
		return
	}

	s.say(q.Question)
	s.mu.Lock()
	s.prepHandle = s.clk.Schedule(s.config.PrepDuration, func() {
		s.startRecording()
	})
	s.mu.Unlock()
	s.armQuestionTimer(s.config.PrepDuration + s.config.RecordDuration)
}

// armQuestionTimer starts the per-second countdown for the active question.
func (s *Session) armQuestionTimer(d time.Duration) {
	s.mu.Lock()
	s.remaining = int(d / time.Second)
	s.tickHandle = s.clk.ScheduleRepeating(time.Second, s.tick)
	s.mu.Unlock()
}

// tick decrements the countdown and triggers expiry at zero.
func (s *Session) tick() {
	s.mu.Lock()
	if s.locked || s.tickHandle == nil {
		s.mu.Unlock()
		return
	}
	s.remaining--
	remaining := s.remaining
	var handle clock.Handle
	if remaining <= 0 {
		handle = s.tickHandle
		s.tickHandle = nil
	}
	s.mu.Unlock()

	s.emit(&CountdownEvent{Remaining: remaining})
	if handle == nil {
		return
	}
	handle.Cancel()
	s.onTimerExpired()
}

// onTimerExpired is the answer-window deadline. In the spoken flow it
// defers to a still-active recorder: the recorder's own deadline ends the
// cycle and the late clip wins over the placeholder.
func (s *Session) onTimerExpired() {
	s.mu.Lock()
	q := s.question
	locked := s.locked
	typed := s.typedAnswer
	s.mu.Unlock()
	if q == nil || locked {
		return
	}

	s.debug("TIMER", "Answer window expired")
	if q.Kind() == KindCoding {
		s.coordinator.SubmitTyped(s.ctx, typed, true)
		return
	}
	if s.recorder.Active() {
		return
	}
	s.coordinator.SubmitPlaceholder(s.ctx, submit.CauseTimeout)
}

// startRecording begins the spoken-answer cycle after the prep pause.
func (s *Session) startRecording() {
	s.mu.Lock()
	q := s.question
	locked := s.locked
	s.mu.Unlock()
	if q == nil || locked || q.Kind() == KindCoding {
		return
	}
	s.recorder.Start()
	s.emit(&RecordingStartedEvent{})
}

// StopAnswer ends the spoken answer early and submits whatever was
// captured. A second stop while the first is in progress is a no-op.
func (s *Session) StopAnswer() {
	s.mu.Lock()
	q := s.question
	if s.sessionID == "" || q == nil || s.locked || q.Kind() == KindCoding || s.stopRequested {
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	s.cancelTimersLocked()
	s.mu.Unlock()

	if s.recorder.Active() {
		s.debug("RECORD", "Stopping and submitting answer")
		s.recorder.Stop(capture.StopUserRequested)
		return
	}
	s.coordinator.SubmitPlaceholder(s.ctx, submit.CauseStoppedEarly)
}

// SetTypedAnswer stores the coding answer draft.
func (s *Session) SetTypedAnswer(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typedAnswer = text
}

// SubmitCoding submits the typed coding answer. With nothing typed the
// call is dropped; only a timeout posts a placeholder.
func (s *Session) SubmitCoding() {
	s.mu.Lock()
	q := s.question
	locked := s.locked
	typed := s.typedAnswer
	s.mu.Unlock()
	if q == nil || locked || q.Kind() != KindCoding {
		return
	}
	// The countdown keeps running: an empty or failed submit leaves the
	// question armed, and after a success the latch makes expiry a no-op.
	s.coordinator.SubmitTyped(s.ctx, typed, false)
}

// Recorder callbacks.

func (s *Session) onClip(clip capture.Clip) {
	s.emit(&RecordingStoppedEvent{Reason: "clip"})
	s.emit(clipEvent(clip, s.config.Recorder.Format))
	s.metrics.recordClip(len(clip.Data))
	s.metrics.recordAnswer("audio")
	s.coordinator.SubmitClip(s.ctx, clip)
}

func (s *Session) onClipEmpty(reason capture.StopReason) {
	s.emit(&RecordingStoppedEvent{Reason: "empty"})
	switch reason {
	case capture.StopUserRequested:
		s.metrics.recordAnswer("placeholder")
		s.coordinator.SubmitPlaceholder(s.ctx, submit.CauseStoppedEarly)
	case capture.StopTimeout:
		s.metrics.recordAnswer("placeholder")
		s.coordinator.SubmitPlaceholder(s.ctx, submit.CauseTimeout)
	default:
	}
}

func (s *Session) onClipDiscarded() {
	s.emit(&RecordingStoppedEvent{Reason: "discarded"})
}

func (s *Session) onAudioLevel(rms float64) {
	s.emit(&AudioLevelEvent{RMS: rms})
}

// Coordinator callbacks.

func (s *Session) onSubmitOutcome(questionID string, hasMore bool) {
	s.mu.Lock()
	q := s.question
	locked := s.locked
	s.mu.Unlock()
	if locked || q == nil || q.ID != questionID {
		return
	}

	s.emit(&AnswerSubmittedEvent{QuestionID: questionID, HasMoreQuestions: hasMore})
	if !hasMore {
		s.complete()
		return
	}
	go s.loadNextQuestion()
}

func (s *Session) onSubmitError(questionID string, err error) {
	s.mu.Lock()
	// Re-enable the stop trigger so the answer can be retried.
	s.stopRequested = false
	s.mu.Unlock()

	s.metrics.recordSubmitError()
	s.emit(&SubmitFailedEvent{QuestionID: questionID, Error: err.Error()})
}

// Monitor callbacks.

func (s *Session) onGazeWarning(count, max int) {
	s.metrics.recordGazeWarning()
	s.emit(&GazeWarningEvent{Count: count, Max: max})
}

func (s *Session) onGazeStatus(onScreen bool) {
	s.emit(&GazeStatusEvent{OnScreen: onScreen})
}

// onLockout is the proctoring escalation: a one-way latch followed by the
// full teardown sequence.
func (s *Session) onLockout() {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return
	}
	s.locked = true
	s.cancelTimersLocked()
	s.question = nil
	startedAt := s.startedAt
	s.mu.Unlock()

	s.recorder.Stop(capture.StopSuperseded)
	s.releaseMedia()
	s.metrics.recordLockout()
	s.metrics.recordSessionEnd("locked_out", s.clk.Now().Sub(startedAt))
	s.setState(StateLockedOut)
	s.emit(&LockedOutEvent{Warnings: s.monitor.Warnings()})
}

// complete finalizes a session whose questions are exhausted. Media is
// released; the report endpoints stay available.
func (s *Session) complete() {
	s.mu.Lock()
	if s.state == StateCompleted {
		s.mu.Unlock()
		return
	}
	s.cancelTimersLocked()
	s.question = nil
	startedAt := s.startedAt
	s.mu.Unlock()

	s.recorder.Stop(capture.StopSuperseded)
	s.releaseMedia()
	s.metrics.recordSessionEnd("completed", s.clk.Now().Sub(startedAt))
	s.setState(StateCompleted)
	s.emit(&SessionCompletedEvent{})
}

// End deletes the service session and tears everything down locally. The
// local teardown happens even when the delete fails.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.sessionID = ""
	wasActive := s.state == StateStarting || s.state == StateIntroducing || s.state == StateQuestioning
	startedAt := s.startedAt
	s.cancelTimersLocked()
	s.question = nil
	s.stopRequested = false
	s.mu.Unlock()

	var err error
	if sessionID != "" {
		err = s.svc.Delete(ctx, sessionID)
	}

	s.recorder.Stop(capture.StopSuperseded)
	s.releaseMedia()
	if wasActive {
		s.metrics.recordSessionEnd("ended", s.clk.Now().Sub(startedAt))
	}
	s.setState(StateIdle)
	s.emit(&SessionEndedEvent{})

	if err != nil {
		return fmt.Errorf("deleting interview session: %w", err)
	}
	return nil
}

// FetchReport fetches the final evaluation. The session id survives
// completion, so the report stays reachable until End deletes the session.
func (s *Session) FetchReport(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return nil, fmt.Errorf("interview: no session to report on")
	}
	return s.svc.Report(ctx, sessionID)
}

// ExportAnswers fetches the raw answers document.
func (s *Session) ExportAnswers(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return nil, fmt.Errorf("interview: no session to export")
	}
	return s.svc.Export(ctx, sessionID)
}

// Close releases all resources. Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	s.cancelTimersLocked()
	s.question = nil
	s.mu.Unlock()

	s.recorder.Stop(capture.StopSuperseded)
	s.releaseMedia()
	s.cancel()
	close(s.done)
	return nil
}

// releaseMedia stops the gaze monitor and releases the mic stream.
func (s *Session) releaseMedia() {
	s.mu.Lock()
	stream := s.micStream
	s.micStream = nil
	s.mu.Unlock()

	s.monitor.Stop()
	if stream != nil {
		stream.Release()
	}
}

// cancelTimersLocked cancels every question-scoped timer. Caller holds mu.
func (s *Session) cancelTimersLocked() {
	if s.introHandle != nil {
		s.introHandle.Cancel()
		s.introHandle = nil
	}
	if s.prepHandle != nil {
		s.prepHandle.Cancel()
		s.prepHandle = nil
	}
	if s.tickHandle != nil {
		s.tickHandle.Cancel()
		s.tickHandle = nil
	}
}

// say voices interviewer text without blocking the caller.
func (s *Session) say(text string) {
	if s.speak == nil {
		return
	}
	go func() {
		if err := s.speak.Speak(s.ctx, text); err != nil {
			s.debug("SPEAK", "Synthesis failed: "+err.Error())
		}
	}()
}

func (s *Session) setState(newState SessionState) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	if oldState != newState {
		s.debug("SESSION", fmt.Sprintf("State: %s -> %s", oldState, newState))
		s.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event to the events channel.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
		// Channel full, drop event
	}
}

// debug logs a debug message if debug mode is enabled.
func (s *Session) debug(category, message string) {
	if s.debugEnabled {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(os.Stderr, "\033[90m%s\033[0m [\033[36m%-10s\033[0m] %s\n", timestamp, category, message)

		s.emit(&DebugEvent{Category: category, Message: message})
	}
}

// serviceSender adapts the session's Service to the submit.Sender
// interface, binding it to the live session id.
type serviceSender struct {
	session *Session
}

func (w *serviceSender) SendText(ctx context.Context, questionID, answerText string) (bool, error) {
	s := w.session
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return false, fmt.Errorf("interview: no active session")
	}
	result, err := s.svc.SubmitText(ctx, sessionID, questionID, answerText)
	if err != nil {
		return false, err
	}
	return result.HasMoreQuestions, nil
}

func (w *serviceSender) SendAudio(ctx context.Context, questionID string, clip capture.Clip) (bool, error) {
	s := w.session
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return false, fmt.Errorf("interview: no active session")
	}
	result, err := s.svc.SubmitAudio(ctx, sessionID, questionID, clip)
	if err != nil {
		return false, err
	}
	return result.HasMoreQuestions, nil
}
