package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Terasay/viau-sub000/internal/catalog"
	"github.com/Terasay/viau-sub000/internal/clock"
	"github.com/Terasay/viau-sub000/internal/visibility"
	"github.com/google/uuid"
)

type Service struct {
	catalog *catalog.Catalog
	ledger  Ledger
	clk     clock.Clock
	log     *slog.Logger
}

func NewService(cat *catalog.Catalog, ledger Ledger, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Service{
		catalog: cat,
		ledger:  ledger,
		clk:     clk,
		log:     logger,
	}
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Service) ListCategories() []catalog.Summary {
	return s.catalog.Summaries()
}

type TechnologyView struct {
	catalog.Node
	Cost     int64  `json:"cost"`
	Category string `json:"category"`
	Line     string `json:"line"`
}

func (s *Service) Technology(techID string) (TechnologyView, error) {
	techID = strings.TrimSpace(techID)
	node, ok := s.catalog.Lookup(techID)
	if !ok {
		return TechnologyView{}, fmt.Errorf("%w: %q", ErrUnknownTechnology, techID)
	}
	m, _ := s.catalog.MembershipOf(techID)
	return TechnologyView{Node: node, Cost: node.Cost(), Category: m.Category, Line: m.Line}, nil
}

// GetTechTree renders one category for a nation, or for an explicit
// researched set when in.Researched is non-nil.
func (s *Service) GetTechTree(ctx context.Context, in TreeInput) (visibility.Tree, error) {
	if _, err := s.catalog.Category(in.CategoryID); err != nil {
		return visibility.Tree{}, err
	}

	var researched visibility.Set
	if in.Researched != nil {
		researched = visibility.NewSet(in.Researched...)
	} else {
		records, err := s.GetProgress(ctx, in.NationID)
		if err != nil {
			return visibility.Tree{}, err
		}
		researched = make(visibility.Set, len(records))
		for _, r := range records {
			researched[r.TechID] = struct{}{}
		}
	}
	return visibility.Build(s.catalog, in.CategoryID, researched, in.RevealHidden)
}

// ResearchNode unlocks a technology for a nation, spending its cost.
//
// Prerequisites are not enforced here: any catalog technology the nation can
// afford may be committed. Privileged callers skip the catalog and cost
// checks and pay nothing.
func (s *Service) ResearchNode(ctx context.Context, in ResearchInput) (CommitResult, error) {
	in.NationID = strings.TrimSpace(in.NationID)
	in.TechID = strings.TrimSpace(in.TechID)

	nation, err := s.ledger.Nation(ctx, in.NationID)
	if err != nil {
		return CommitResult{}, err
	}
	if in.TechID == "" {
		return CommitResult{}, fmt.Errorf("%w: empty id", ErrUnknownTechnology)
	}
	done, err := s.ledger.IsResearched(ctx, nation.ID, in.TechID)
	if err != nil {
		return CommitResult{}, err
	}
	if done {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrAlreadyResearched, in.TechID)
	}

	var cost int64
	if !in.Privileged {
		node, ok := s.catalog.Lookup(in.TechID)
		if !ok {
			return CommitResult{}, fmt.Errorf("%w: %q", ErrUnknownTechnology, in.TechID)
		}
		cost = node.Cost()
		if nation.ResearchPoints < cost {
			return CommitResult{}, &InsufficientPointsError{Required: cost, Available: nation.ResearchPoints}
		}
	}

	out, err := s.ledger.Commit(ctx, CommitInput{
		NationID: nation.ID,
		TechID:   in.TechID,
		Cost:     cost,
		At:       s.clk.Now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		if errors.Is(err, ErrStorageConflict) || !isDomainError(err) {
			s.log.Error("research commit failed", "nation_id", nation.ID, "tech_id", in.TechID, "err", err)
		} else {
			s.log.Debug("research commit rejected", "nation_id", nation.ID, "tech_id", in.TechID, "err", err)
		}
		return CommitResult{}, err
	}
	s.log.Info("technology researched",
		"nation_id", nation.ID,
		"tech_id", in.TechID,
		"cost", out.CostSpent,
		"balance", out.RemainingBalance,
		"privileged", in.Privileged,
	)
	return out, nil
}

func (s *Service) GetProgress(ctx context.Context, nationID string) ([]Record, error) {
	nationID = strings.TrimSpace(nationID)
	if _, err := s.ledger.Nation(ctx, nationID); err != nil {
		return nil, err
	}
	return s.ledger.Progress(ctx, nationID)
}

func (s *Service) Nation(ctx context.Context, nationID string) (Nation, error) {
	return s.ledger.Nation(ctx, strings.TrimSpace(nationID))
}

func (s *Service) CreateNation(ctx context.Context, name string, points int64) (Nation, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 64 {
		return Nation{}, ErrInvalidName
	}
	if points < 0 {
		return Nation{}, fmt.Errorf("%w: research points must be >= 0", ErrInvalidAmount)
	}
	n := Nation{
		ID:             uuid.NewString(),
		Name:           name,
		ResearchPoints: points,
		CreatedAt:      s.clk.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.ledger.CreateNation(ctx, n); err != nil {
		return Nation{}, err
	}
	s.log.Info("nation created", "nation_id", n.ID, "research_points", points)
	return n, nil
}

// GrantPoints credits research points to one nation.
func (s *Service) GrantPoints(ctx context.Context, nationID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return s.ledger.GrantPoints(ctx, strings.TrimSpace(nationID), amount)
}

// AdvanceTurn credits the per-turn research income to every nation and
// returns how many nations were credited.
func (s *Service) AdvanceTurn(ctx context.Context, income int64) (int64, error) {
	if income <= 0 {
		return 0, ErrInvalidAmount
	}
	n, err := s.ledger.GrantAll(ctx, income)
	if err != nil {
		return 0, err
	}
	s.log.Info("turn advanced", "nations", n, "income", income)
	return n, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNationNotFound) ||
		errors.Is(err, ErrAlreadyResearched) ||
		errors.Is(err, ErrInsufficientResearchPoints) ||
		errors.Is(err, ErrUnknownTechnology)
}
