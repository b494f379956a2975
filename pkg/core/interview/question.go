package interview

import "strings"

// Role is one detected candidate role, sent when starting an interview.
type Role struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Question is one interview question served by the interview service.
type Question struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
}

// Kind is the answer mode a question demands.
type Kind int

const (
	// KindSpoken is answered by voice within the prep+record window.
	KindSpoken Kind = iota
	// KindCoding is answered by typed text within the coding window.
	KindCoding
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	if k == KindCoding {
		return "CODING"
	}
	return "SPOKEN"
}

// Kind classifies the question's answer mode. The service does not carry
// an explicit mode field, so coding rounds are recognized by their id,
// role, or phrasing.
func (q *Question) Kind() Kind {
	if q == nil {
		return KindSpoken
	}
	id := strings.ToLower(q.ID)
	role := strings.ToLower(q.Role)
	text := strings.ToLower(q.Question)
	if role == "coding_round" ||
		strings.HasPrefix(id, "coding_") ||
		id == "coding_round_1" ||
		strings.Contains(text, "write working code") {
		return KindCoding
	}
	return KindSpoken
}

// StartResult is the service's response to starting an interview.
type StartResult struct {
	SessionID      string `json:"session_id"`
	TotalQuestions int    `json:"total_questions"`
}

// AnswerResult is the service's response to a submitted answer.
type AnswerResult struct {
	HasMoreQuestions bool `json:"has_more_questions"`
}

// RoleReport is one role's score block in the final report.
type RoleReport struct {
	RoleName      string  `json:"role_name"`
	TotalRawScore float64 `json:"total_raw_score"`
	MaxPossible   float64 `json:"max_possible"`
}

// Report is the final interview evaluation.
type Report struct {
	Roles          []RoleReport `json:"roles"`
	TotalRawScore  float64      `json:"total_raw_score"`
	MaxPossible    float64      `json:"max_possible"`
	FinalSummary   string       `json:"final_summary"`
	TotalQuestions int          `json:"total_questions"`
}
