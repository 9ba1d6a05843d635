package engine

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrExpansionLimit = errors.New("term expansion limit exceeded")
)

// execContext tracks per-search limits. Cancellation checks are amortized so
// tight loops over documents do not call ctx.Err on every iteration.
type execContext struct {
	ctx context.Context

	maxTermsExpanded int
	termsExpanded    int

	checkCounter  int
	checkInterval int
}

func newExecContext(ctx context.Context, maxTerms int) *execContext {
	if maxTerms <= 0 {
		maxTerms = 1000
	}
	return &execContext{
		ctx:              ctx,
		maxTermsExpanded: maxTerms,
		checkInterval:    128,
	}
}

// expanded records n more expanded terms and fails once over budget.
func (ec *execContext) expanded(n int) error {
	ec.termsExpanded += n
	if ec.termsExpanded > ec.maxTermsExpanded {
		return fmt.Errorf("%w: %d terms (max %d)", ErrExpansionLimit, ec.termsExpanded, ec.maxTermsExpanded)
	}
	return nil
}

// check returns the context error, consulting it every checkInterval calls.
func (ec *execContext) check() error {
	ec.checkCounter++
	if ec.checkCounter%ec.checkInterval == 0 {
		return ec.ctx.Err()
	}
	return nil
}
