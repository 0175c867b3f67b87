package research

import (
	"errors"
	"fmt"

	"github.com/Terasay/viau-sub000/internal/catalog"
)

var (
	ErrCategoryNotFound           = catalog.ErrCategoryNotFound
	ErrNationNotFound             = errors.New("nation not found")
	ErrUnknownTechnology          = errors.New("unknown technology")
	ErrAlreadyResearched          = errors.New("technology already researched")
	ErrInsufficientResearchPoints = errors.New("insufficient research points")
	// ErrStorageConflict marks a lost race inside the store. Callers may retry.
	ErrStorageConflict = errors.New("storage conflict, retry")
	ErrInvalidAmount   = errors.New("amount must be > 0")
	ErrInvalidName     = errors.New("nation name must be 1-64 characters")
)

// InsufficientPointsError carries the amounts for display.
type InsufficientPointsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("%s: required %d, available %d", ErrInsufficientResearchPoints, e.Required, e.Available)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientResearchPoints
}
