package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainshopapp/chainshop/internal/models"
)

// Reconciler periodically re-reads chain truth for orders that may have
// fallen behind it. The pickup transition is the only one the contract
// exposes a view for; orders stuck without a deployed contract are
// surfaced to operators in the log.
type Reconciler struct {
	orders   orderStore
	escrow   escrowClient
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(orders orderStore, escrowClient escrowClient, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		escrow:   escrowClient,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	orders, err := r.orders.ListByStatus(ctx, models.StatusCreated)
	if err != nil {
		r.logger.Error("reconcile sweep failed to list orders", "error", err)
		return
	}

	for _, order := range orders {
		if !order.Deployed() {
			r.logger.Warn("order has no escrow contract, needs operator re-deploy",
				"order_id", order.ID, "created_at", order.CreatedAt)
			continue
		}

		pickedUp, err := r.escrow.IsPickedUp(ctx, common.HexToAddress(order.ContractAddress))
		if err != nil {
			r.logger.Warn("reconcile sweep could not read contract",
				"order_id", order.ID, "contract", order.ContractAddress, "error", err)
			continue
		}
		if !pickedUp {
			continue
		}

		if err := r.orders.AdvanceStatus(ctx, order.ID, models.StatusCreated, models.StatusPending); err != nil {
			r.logger.Error("reconcile sweep failed to advance order",
				"order_id", order.ID, "error", err)
			continue
		}
		r.logger.Info("reconciled order behind chain", "order_id", order.ID)
	}
}
