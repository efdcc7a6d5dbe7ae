package selection

import (
	"errors"
	"fmt"
)

// Terminal selection errors surfaced to the caller.
var (
	// ErrNoEligibleProviders means the company has no active provider at
	// all for the branch.
	ErrNoEligibleProviders = errors.New("selection: no eligible providers")
	// ErrNoViableProviders means every eligible provider was eliminated by
	// the viability filter.
	ErrNoViableProviders = errors.New("selection: no viable providers")
)

// ScoringError marks a per-provider scoring failure. The selector excludes
// the provider and continues; it never aborts the selection.
type ScoringError struct {
	ProviderID string
	Err        error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("selection: scoring provider %s: %v", e.ProviderID, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }
