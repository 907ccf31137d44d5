package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/verdantx/carbon-exchange/internal/domain"
)

// match runs one matching pass for the incoming order: price priority first,
// time priority at equal price, execution at the resting order's price. Each
// counter-order fill is settled independently; a failed write skips that
// candidate without rolling back earlier fills in the pass (best-effort, not
// transactional across the batch). Returns the executed trades belonging to
// the incoming order and whether the pass was degraded by store failures.
func (e *Engine) match(ctx context.Context, o *domain.Order) ([]*domain.Trade, bool) {
	remaining := o.Remaining()
	if !remaining.GreaterThan(decimal.Zero) {
		return nil, false
	}

	var limitPrice *decimal.Decimal
	if o.Kind == domain.Limit {
		p := o.Price
		limitPrice = &p
	}

	candidates, err := e.repo.LoadCandidates(ctx, o.Symbol, o.Side.Opposite(), limitPrice)
	if err != nil {
		// A failed candidate read means no eligible candidates; the order
		// stays open.
		e.log.WithError(err).WithField("symbol", o.Symbol).Warn("candidate read failed, order left open")
		return nil, true
	}

	var executed []*domain.Trade
	degraded := false

	for _, cand := range candidates {
		if !remaining.GreaterThan(decimal.Zero) {
			break
		}
		qty, trade, err := e.fillCandidate(ctx, o, cand, remaining)
		if err != nil {
			degraded = true
			continue
		}
		if trade == nil {
			continue
		}
		executed = append(executed, trade)
		remaining = remaining.Sub(qty)
	}

	filled := o.Quantity.Sub(remaining)
	if filled.GreaterThan(decimal.Zero) {
		status := domain.StatusForFill(filled, o.Quantity)
		if err := e.repo.ApplyFill(ctx, o.ID, o.Filled, filled, status); err != nil {
			e.log.WithError(err).WithField("order_id", o.ID).Warn("incoming order fill update failed")
			degraded = true
		} else {
			o.Filled = filled
			o.Status = status
			o.UpdatedAt = time.Now().UTC()
		}
	}

	return executed, degraded
}

// fillCandidate settles one match step against a single counter-order. The
// conditional update retries once after a conflict with a fresh read; a
// second conflict or any other store failure skips the candidate.
func (e *Engine) fillCandidate(ctx context.Context, o, cand *domain.Order, remaining decimal.Decimal) (decimal.Decimal, *domain.Trade, error) {
	for attempt := 0; attempt < 2; attempt++ {
		candRemaining := cand.Remaining()
		if !cand.Resting() || !candRemaining.GreaterThan(decimal.Zero) {
			return decimal.Zero, nil, nil
		}

		qty := decimal.Min(remaining, candRemaining)
		// Price improvement accrues to the incoming order: execution always
		// happens at the resting order's posted price.
		price := cand.Price
		now := time.Now().UTC()

		own := &domain.Trade{
			ID:        uuid.NewString(),
			Account:   o.Account,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Price:     price,
			Quantity:  qty,
			CreatedAt: now,
		}
		counter := &domain.Trade{
			ID:        uuid.NewString(),
			Account:   cand.Account,
			Symbol:    cand.Symbol,
			Side:      cand.Side,
			Price:     price,
			Quantity:  qty,
			CreatedAt: now,
		}

		newFilled := cand.Filled.Add(qty)
		status := domain.StatusForFill(newFilled, cand.Quantity)

		err := e.repo.ExecuteFill(ctx, cand.ID, cand.Filled, newFilled, status, []*domain.Trade{own, counter})
		if err == nil {
			cand.Filled = newFilled
			cand.Status = status
			e.publishTrades(ctx, own, counter)
			return qty, own, nil
		}

		if errors.Is(err, domain.ErrFillConflict) && attempt == 0 {
			fresh, rerr := e.repo.LoadOrder(ctx, cand.ID)
			if rerr != nil {
				e.candidateLog(cand).WithError(rerr).Warn("candidate re-read failed after fill conflict")
				return decimal.Zero, nil, rerr
			}
			cand = fresh
			continue
		}

		e.candidateLog(cand).WithError(err).Warn("candidate fill skipped")
		return decimal.Zero, nil, err
	}
	return decimal.Zero, nil, domain.ErrFillConflict
}

func (e *Engine) publishTrades(ctx context.Context, trades ...*domain.Trade) {
	if e.notifier == nil {
		return
	}
	for _, t := range trades {
		if err := e.notifier.PublishTrade(ctx, t); err != nil {
			e.log.WithError(err).WithField("trade_id", t.ID).Warn("trade publish failed")
		}
	}
}

func (e *Engine) candidateLog(cand *domain.Order) *logrus.Entry {
	return e.log.WithFields(logrus.Fields{
		"order_id": cand.ID,
		"symbol":   cand.Symbol,
	})
}
