package interview

import (
	"time"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
)

// Event is the interface for all interview session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionStartedEvent is emitted once the service session exists and both
// media devices are acquired.
type SessionStartedEvent struct {
	SessionID      string `json:"session_id"`
	TotalQuestions int    `json:"total_questions"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// IntroStartedEvent is emitted when the interviewer preamble begins.
type IntroStartedEvent struct {
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
}

func (e *IntroStartedEvent) EventType() string { return "intro.started" }

// QuestionPresentedEvent is emitted when a new question becomes active.
type QuestionPresentedEvent struct {
	Index    int       `json:"index"`
	Question *Question `json:"question"`
	Kind     string    `json:"kind"`
}

func (e *QuestionPresentedEvent) EventType() string { return "question.presented" }

// CountdownEvent is emitted once per second while a question timer runs.
type CountdownEvent struct {
	Remaining int `json:"remaining"`
}

func (e *CountdownEvent) EventType() string { return "timer.countdown" }

// RecordingStartedEvent is emitted when the recorder begins a cycle.
type RecordingStartedEvent struct{}

func (e *RecordingStartedEvent) EventType() string { return "recording.started" }

// RecordingStoppedEvent is emitted when a recording cycle ends.
type RecordingStoppedEvent struct {
	Reason string `json:"reason"`
}

func (e *RecordingStoppedEvent) EventType() string { return "recording.stopped" }

// AudioLevelEvent carries the live mic level while recording.
type AudioLevelEvent struct {
	RMS float64 `json:"rms"`
}

func (e *AudioLevelEvent) EventType() string { return "audio.level" }

// AnswerSubmittedEvent is emitted when the service accepts an answer.
type AnswerSubmittedEvent struct {
	QuestionID       string `json:"question_id"`
	HasMoreQuestions bool   `json:"has_more_questions"`
}

func (e *AnswerSubmittedEvent) EventType() string { return "answer.submitted" }

// SubmitFailedEvent is emitted when a submission fails. The triggers are
// re-enabled so the answer can be retried.
type SubmitFailedEvent struct {
	QuestionID string `json:"question_id"`
	Error      string `json:"error"`
}

func (e *SubmitFailedEvent) EventType() string { return "answer.failed" }

// GazeStatusEvent is emitted on each attention judgment tick.
type GazeStatusEvent struct {
	OnScreen bool `json:"on_screen"`
}

func (e *GazeStatusEvent) EventType() string { return "gaze.status" }

// GazeWarningEvent is emitted when the proctoring policy issues a warning.
type GazeWarningEvent struct {
	Count int `json:"count"`
	Max   int `json:"max"`
}

func (e *GazeWarningEvent) EventType() string { return "gaze.warning" }

// LockedOutEvent is emitted when the warning limit ends the interview.
type LockedOutEvent struct {
	Warnings int `json:"warnings"`
}

func (e *LockedOutEvent) EventType() string { return "session.locked_out" }

// SessionCompletedEvent is emitted when the final answer is accepted and
// no questions remain.
type SessionCompletedEvent struct{}

func (e *SessionCompletedEvent) EventType() string { return "session.completed" }

// SessionEndedEvent is emitted after an explicit end deletes the session.
type SessionEndedEvent struct{}

func (e *SessionEndedEvent) EventType() string { return "session.ended" }

// ClipReadyEvent is emitted when a recorded answer is assembled, before it
// is uploaded.
type ClipReadyEvent struct {
	DurationMs int    `json:"duration_ms"`
	MIMEType   string `json:"mime_type"`
}

func (e *ClipReadyEvent) EventType() string { return "clip.ready" }

// ErrorEvent is emitted for recoverable errors surfaced to the user.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// DebugEvent is emitted when debug mode is enabled.
type DebugEvent struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (e *DebugEvent) EventType() string { return "debug" }

// clipEvent builds a ClipReadyEvent from an assembled clip.
func clipEvent(clip capture.Clip, format capture.Format) *ClipReadyEvent {
	return &ClipReadyEvent{
		DurationMs: format.DurationMs(len(clip.Data)),
		MIMEType:   clip.MIMEType,
	}
}
