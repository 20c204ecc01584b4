// Package selection defines the contract for picking a subset of items under a budget.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/runtest/internal/domain/model"
)

// Default selection configuration constants.
const (
	defaultCheckInterval = 1024
)

// Sentinel kinds for selection errors.
var (
	ErrCancelled = errors.New("selection cancelled")
)

// Option applies a configuration option to the GreedyRatio selector.
type Option func(*GreedyRatio)

// WithCheckInterval sets how many items are visited between context checks.
func WithCheckInterval(n int) Option {
	return func(g *GreedyRatio) {
		if n > 0 {
			g.checkInterval = n
		}
	}
}

// Selector picks items whose accumulated weight fits within budget.
type Selector interface {
	// Select returns the chosen items in selection order, honoring ctx for cancellation.
	// The input slice is never modified.
	Select(ctx context.Context, items model.Items, budget float64) (model.Items, error)
}

// GreedyRatio orders items by ascending cost-to-weight ratio and takes every
// item whose weight still fits in the remaining budget. An item that does not
// fit is skipped and the scan continues with the next one.
type GreedyRatio struct {
	checkInterval int
}

// NewGreedyRatio creates a greedy ratio selector with configuration options.
func NewGreedyRatio(opts ...Option) *GreedyRatio {
	g := &GreedyRatio{
		checkInterval: defaultCheckInterval,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Select implements Selector.
func (g *GreedyRatio) Select(ctx context.Context, items model.Items, budget float64) (model.Items, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	sorted := make(model.Items, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessRatio(sorted[i], sorted[j])
	})

	selected := make(model.Items, 0, len(sorted))
	var spent float64
	for i, it := range sorted {
		if i > 0 && i%g.checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}
		// NaN weights or budgets make the comparison false, so those items are skipped.
		if spent+it.Y <= budget {
			selected = append(selected, it)
			spent += it.Y
		}
	}

	return selected, nil
}

// lessRatio orders by ascending ratio. A NaN ratio compares equal to everything.
func lessRatio(a, b model.Item) bool {
	ra, rb := a.Ratio(), b.Ratio()
	if math.IsNaN(ra) || math.IsNaN(rb) {
		return false
	}
	return ra < rb
}
