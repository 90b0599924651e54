package domain

// StackAdd reports an exit-stack insertion. AlreadyBuffered means the card
// was in the team's buffer before this call and nothing changed.
type StackAdd struct {
	TeamID          string `json:"team_id"`
	CardID          string `json:"card_id"`
	StackSize       int    `json:"stack_size"`
	AlreadyBuffered bool   `json:"already_buffered,omitempty"`
}

// TeamStack is a read-only snapshot of one team's buffered exit cards.
type TeamStack struct {
	TeamID    string   `json:"team_id"`
	CardCount int      `json:"card_count"`
	Cards     []string `json:"cards"`
}

// StackStats summarizes the whole buffer.
type StackStats struct {
	Teams int `json:"teams"`
	Cards int `json:"cards"`
}

// Release statuses.
const (
	ReleaseCompleted = "completed"
	ReleaseEmpty     = "no-cards-in-stack"
	ReleaseFailed    = "transaction-failed"
)

// CardRelease is the per-card outcome of a bulk release.
type CardRelease struct {
	CardID   string `json:"card_id"`
	Released bool   `json:"released"`
	Error    string `json:"error,omitempty"`
}

// ReleaseResult reports a bulk release. On a transaction-level failure
// Released is zero and the buffer is left intact.
type ReleaseResult struct {
	TeamID   string        `json:"team_id"`
	Status   string        `json:"status"`
	Released int           `json:"released"`
	Errors   int           `json:"errors"`
	Cards    []CardRelease `json:"cards,omitempty"`
}
