package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/atelier-api/internal/models"
	appErrors "github.com/noah-isme/atelier-api/pkg/errors"
)

// chainDebiter is the minimal ledger surface the resolver needs.
type chainDebiter interface {
	Debit(ctx context.Context, exec sqlx.ExtContext, productID string, stage models.Stage, quantity int) error
}

// ResolveSource walks the predecessor stages of target in declared order and
// debits the full quantity from the first one that can satisfy it. The debit
// is all-or-nothing per stage; partial draws across stages never happen.
// Returns the chosen stage, or nil when target has no predecessors (entry
// stages reserve nothing). When every predecessor is short, the error lists
// the stages that were checked.
func ResolveSource(ctx context.Context, exec sqlx.ExtContext, ledger chainDebiter, productID string, target models.Stage, quantity int) (*models.Stage, error) {
	predecessors := target.Predecessors()
	if len(predecessors) == 0 {
		return nil, nil
	}

	checked := make([]string, 0, len(predecessors))
	for _, stage := range predecessors {
		err := ledger.Debit(ctx, exec, productID, stage, quantity)
		if err == nil {
			chosen := stage
			return &chosen, nil
		}
		if appErrors.Is(err, appErrors.ErrInsufficientStock) {
			checked = append(checked, string(stage))
			continue
		}
		return nil, err
	}

	return nil, appErrors.Clone(appErrors.ErrNoAvailableStock,
		fmt.Sprintf("no stock for %d unit(s) in stage(s) %s", quantity, strings.Join(checked, ", ")))
}
