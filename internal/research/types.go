package research

import (
	"context"
	"time"
)

type Nation struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ResearchPoints int64     `json:"research_points"`
	CreatedAt      time.Time `json:"created_at"`
}

// Record is one unlocked technology of a nation.
type Record struct {
	TechID       string    `json:"tech_id"`
	ResearchedAt time.Time `json:"researched_at"`
}

type CommitInput struct {
	NationID string
	TechID   string
	Cost     int64
	At       time.Time
}

type CommitResult struct {
	CostSpent        int64     `json:"cost_spent"`
	RemainingBalance int64     `json:"remaining_balance"`
	ResearchedAt     time.Time `json:"researched_at"`
}

type ResearchInput struct {
	NationID   string
	TechID     string
	Privileged bool
}

type TreeInput struct {
	CategoryID string
	NationID   string
	// Researched, when non-nil, replaces the nation's ledger state and the
	// nation is not consulted.
	Researched   []string
	RevealHidden bool
}

// Ledger is the durable research state of nations.
//
// Commit must insert the (nation, tech) record and debit Cost in one
// transaction. It returns ErrNationNotFound, ErrAlreadyResearched or an
// *InsufficientPointsError without side effects when a guard fails, and
// ErrStorageConflict when it keeps losing races.
type Ledger interface {
	CreateNation(ctx context.Context, n Nation) error
	Nation(ctx context.Context, nationID string) (Nation, error)
	IsResearched(ctx context.Context, nationID, techID string) (bool, error)
	// Progress lists records ordered by researched_at, then tech id.
	Progress(ctx context.Context, nationID string) ([]Record, error)
	Commit(ctx context.Context, in CommitInput) (CommitResult, error)
	GrantPoints(ctx context.Context, nationID string, amount int64) (int64, error)
	GrantAll(ctx context.Context, amount int64) (int64, error)
}
