// Package submit is the idempotency gate between answer triggers and the
// interview service. Timer expiry, user stops, and recorder completion can
// all race to submit the same question; the coordinator's per-question
// latch guarantees at most one submission is dispatched.
package submit

import (
	"context"
	"strings"
	"sync"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/capture"
)

// Placeholder answers posted when a question ends with neither audio nor
// typed text. The service grades them as missed answers instead of
// silently skipping the question.
const (
	PlaceholderTimeout      = "(No answer - time expired)"
	PlaceholderStoppedEarly = "(Candidate stopped early)"
)

// Cause tags why a placeholder answer is being posted.
type Cause int

const (
	// CauseTimeout means the answer window expired with nothing captured.
	CauseTimeout Cause = iota
	// CauseStoppedEarly means the candidate stopped before saying anything.
	CauseStoppedEarly
)

func (c Cause) placeholder() string {
	if c == CauseStoppedEarly {
		return PlaceholderStoppedEarly
	}
	return PlaceholderTimeout
}

// Status is the per-question submission state.
type Status int

const (
	// StatusAwaiting means no submission has been dispatched yet.
	StatusAwaiting Status = iota
	// StatusSubmitting means a submission request is in flight.
	StatusSubmitting
	// StatusSubmitted is terminal for the question.
	StatusSubmitted
	// StatusFailed re-enables the triggers so the answer can be retried.
	StatusFailed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusAwaiting:
		return "AWAITING"
	case StatusSubmitting:
		return "SUBMITTING"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Sender posts one answer to the interview service and reports whether the
// session holds further questions.
type Sender interface {
	SendText(ctx context.Context, questionID, answerText string) (hasMore bool, err error)
	SendAudio(ctx context.Context, questionID string, clip capture.Clip) (hasMore bool, err error)
}

// Coordinator serializes answer submission for one question at a time.
// The latch is set the instant a request is dispatched, not when it
// completes, so concurrent triggers observe it and no-op.
type Coordinator struct {
	sender Sender

	mu         sync.Mutex
	questionID string
	status     Status

	onOutcome func(questionID string, hasMore bool)
	onError   func(questionID string, err error)
	onDebug   func(category, message string)
}

// NewCoordinator creates a coordinator over the given sender.
func NewCoordinator(sender Sender) *Coordinator {
	return &Coordinator{sender: sender}
}

// SetCallbacks sets the submission event callbacks.
func (c *Coordinator) SetCallbacks(
	onOutcome func(questionID string, hasMore bool),
	onError func(questionID string, err error),
	onDebug func(category, message string),
) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOutcome = onOutcome
	c.onError = onError
	c.onDebug = onDebug
}

// BindQuestion rebinds the coordinator to a new question and resets the
// latch. Submissions still in flight for the previous question report to a
// stale question id and are ignored by the orchestrator.
func (c *Coordinator) BindQuestion(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.questionID = questionID
	c.status = StatusAwaiting
}

// Status returns the bound question's submission state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Sent reports whether a submission has been dispatched (or completed) for
// the bound question. In-flight counts as sent.
func (c *Coordinator) Sent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusSubmitting || c.status == StatusSubmitted
}

// SubmitClip posts recorded audio as the answer. Empty clips are rejected;
// the caller decides which placeholder applies.
func (c *Coordinator) SubmitClip(ctx context.Context, clip capture.Clip) {
	if len(clip.Data) == 0 {
		c.debug("SUBMIT", "Ignoring empty clip")
		return
	}
	questionID, ok := c.arm()
	if !ok {
		return
	}
	go c.send(questionID, func() (bool, error) {
		return c.sender.SendAudio(ctx, questionID, clip)
	})
}

// SubmitTyped posts a typed coding answer. With no typed text the call is
// dropped, unless the trigger was a timeout, in which case the timeout
// placeholder is posted so the question is not silently skipped.
func (c *Coordinator) SubmitTyped(ctx context.Context, text string, timedOut bool) {
	answer := strings.TrimSpace(text)
	if answer == "" {
		if !timedOut {
			c.debug("SUBMIT", "No typed answer, ignoring submit")
			return
		}
		answer = PlaceholderTimeout
	}
	questionID, ok := c.arm()
	if !ok {
		return
	}
	go c.send(questionID, func() (bool, error) {
		return c.sender.SendText(ctx, questionID, answer)
	})
}

// SubmitPlaceholder posts the cause-tagged placeholder for a spoken
// question that produced no audio.
func (c *Coordinator) SubmitPlaceholder(ctx context.Context, cause Cause) {
	questionID, ok := c.arm()
	if !ok {
		return
	}
	answer := cause.placeholder()
	go c.send(questionID, func() (bool, error) {
		return c.sender.SendText(ctx, questionID, answer)
	})
}

// arm sets the dispatch latch. It fails when no question is bound or a
// submission was already dispatched and has not failed.
func (c *Coordinator) arm() (string, bool) {
	c.mu.Lock()
	if c.questionID == "" {
		c.mu.Unlock()
		return "", false
	}
	if c.status == StatusSubmitting || c.status == StatusSubmitted {
		status := c.status
		c.mu.Unlock()
		c.debug("SUBMIT", "Trigger ignored, submission already "+status.String())
		return "", false
	}
	c.status = StatusSubmitting
	questionID := c.questionID
	c.mu.Unlock()
	return questionID, true
}

// send runs one submission request and settles the latch.
func (c *Coordinator) send(questionID string, do func() (bool, error)) {
	hasMore, err := do()

	c.mu.Lock()
	stale := c.questionID != questionID
	if !stale {
		if err != nil {
			c.status = StatusFailed
		} else {
			c.status = StatusSubmitted
		}
	}
	onOutcome := c.onOutcome
	onError := c.onError
	c.mu.Unlock()

	if stale {
		c.debug("SUBMIT", "Result for superseded question "+questionID+" dropped")
		return
	}
	if err != nil {
		c.debug("SUBMIT", "Submission failed: "+err.Error())
		if onError != nil {
			onError(questionID, err)
		}
		return
	}
	if onOutcome != nil {
		onOutcome(questionID, hasMore)
	}
}

func (c *Coordinator) debug(category, message string) {
	c.mu.Lock()
	fn := c.onDebug
	c.mu.Unlock()
	if fn != nil {
		fn(category, message)
	}
}
