package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonasrmichel/jupiter-pingpong/pkg/types"
)

// DryRunExecutor settles every swap at the quoted amounts without touching the chain.
type DryRunExecutor struct{}

// NewDryRunExecutor creates a dry-run executor.
func NewDryRunExecutor() *DryRunExecutor {
	return &DryRunExecutor{}
}

// Execute returns the quoted amounts as if the swap had landed.
func (d *DryRunExecutor) Execute(ctx context.Context, route *types.Route, wallet types.Wallet) (*types.SwapResult, error) {
	if route == nil {
		return nil, fmt.Errorf("route is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &types.SwapResult{
		Signature:    "dry-run-" + uuid.NewString(),
		InputAmount:  route.InAmount,
		OutputAmount: route.OutAmount,
		Duration:     time.Millisecond,
		DryRun:       true,
	}, nil
}
