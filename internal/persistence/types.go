package persistence

import "time"

// Round records one completed dispatch round for a project, so token
// spend and failure rates stay inspectable across sessions.
type Round struct {
	ID               int64
	Project          string
	RoundNo          int
	StartedAt        time.Time
	FinishedAt       time.Time
	BatchesCompleted int
	BatchesFailed    int
	BatchesBlocked   int
	ItemsTranslated  int
	InputTokens      int
	OutputTokens     int
}

// TokenUsage aggregates spend over all recorded rounds of a project.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	Rounds       int
}
