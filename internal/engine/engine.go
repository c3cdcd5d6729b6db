// Package engine is the central orchestrator of nexuscore.
//
// It wires together every subsystem:
//
//  1. internal/feetable computes venue execution fees, processing fees, and
//     commission for every US destination.
//  2. internal/simengine simulates fills per security, or internal/matcher's
//     RESTVenueDriver forwards to a real downstream venue.
//  3. internal/matcher.Driver sits in front of that venue, pairing eligible
//     orders internally before any residue is forwarded.
//  4. internal/risk.Controller watches every account's fills and can force
//     an account's orders flat or disable it outright.
//  5. internal/store persists open orders and their report logs for
//     crash recovery.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexuscore/internal/config"
	"nexuscore/internal/domain"
	"nexuscore/internal/feetable"
	"nexuscore/internal/matcher"
	"nexuscore/internal/money"
	"nexuscore/internal/risk"
	"nexuscore/internal/simengine"
	"nexuscore/internal/store"
	"nexuscore/internal/telemetry"
)

// Engine orchestrates all components of the order-execution system. It owns
// the lifecycle of every goroutine and is the single place client-facing
// order submission enters the process.
type Engine struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	feeTable *feetable.ConsolidatedUsFeeTable
	venue    matcher.VenueDriver
	simMgr   *simengine.Manager
	driver   *matcher.Driver
	riskCtl  *risk.Controller
	snapshot *store.SnapshotStore
	boardLot *domain.BoardLotCheck

	nextOrderID atomic.Int64

	seenAccountsMu sync.Mutex
	seenAccounts   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every subsystem together but starts nothing yet.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := telemetry.New()

	feeTable, err := feetable.LoadConsolidatedUs(cfg.FeeTable.RatesPath, cfg.FeeTable.Destinations, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("load fee tables: %w", err)
	}

	snap, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var venue matcher.VenueDriver
	var simMgr *simengine.Manager
	if cfg.Venue.Simulated {
		simMgr = simengine.NewManager(ctx, logger, nil)
		venue = simengine.NewVenueAdapter(simMgr)
	} else {
		venue = matcher.NewRESTVenueDriver(matcher.RESTVenueConfig{
			BaseURL: cfg.Venue.BaseURL,
			FeedURL: cfg.Venue.FeedURL,
			Timeout: cfg.Venue.Timeout,
			DryRun:  cfg.Venue.DryRun,
			RateLimit: matcher.RateLimitConfig{
				OrderBurst:   cfg.Venue.RateLimit.OrderBurst,
				OrderPerSec:  cfg.Venue.RateLimit.OrderPerSec,
				CancelBurst:  cfg.Venue.RateLimit.CancelBurst,
				CancelPerSec: cfg.Venue.RateLimit.CancelPerSec,
				BookBurst:    cfg.Venue.RateLimit.BookBurst,
				BookPerSec:   cfg.Venue.RateLimit.BookPerSec,
			},
		}, logger)
	}

	e := &Engine{
		cfg:          cfg,
		logger:       logger.With("component", "engine"),
		metrics:      metrics,
		feeTable:     feeTable,
		venue:        venue,
		simMgr:       simMgr,
		snapshot:     snap,
		seenAccounts: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}

	// No previous-close source or live-BBO fallback is wired here — both
	// are external-collaborator contracts this process doesn't implement
	// (spec.md §6) — so e.boardLot sees a zero price, which falls in the
	// "multiple of 1000" band for TSX/TSXV securities, but still gates every
	// submission the way the original does.
	e.boardLot = domain.NewBoardLotCheck(nil, nil, logger)

	e.driver = matcher.New(matcher.Config{
		RendezvousTimeout: cfg.Router.RendezvousTimeout,
		Metrics:           metrics,
		OnFill:            e.onFill,
	}, venue, logger, nil)

	e.riskCtl = risk.New(risk.Config{
		TickInterval: cfg.Risk.TickInterval,
		Metrics:      metrics,
	}, e.driver, staticDestinations(cfg.Risk.Destinations), staticRates(cfg.Risk.Rates), logger, nil)

	return e, nil
}

// Start recovers any open orders from the snapshot store, then launches the
// matcher's and risk controller's goroutines.
func (e *Engine) Start() error {
	if err := e.recover(); err != nil {
		return fmt.Errorf("recover open orders: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.driver.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.riskCtl.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-e.ctx.Done():
				return
			case st := <-e.riskCtl.States():
				e.logger.Info("risk state transition",
					"account", st.Account.ID, "state", st.State.Type)
			}
		}
	}()

	e.logger.Info("engine started")
	return nil
}

// recover loads every still-open order from the snapshot store and re-admits
// it to the matcher, mirroring the teacher's LoadPosition-on-start pattern.
func (e *Engine) recover() error {
	snapshots, err := e.snapshot.LoadOpenOrders()
	if err != nil {
		return err
	}
	for _, snap := range snapshots {
		snap.Info.Fields.Account = snap.Account
		order := domain.NewPrimitiveOrder(snap.Info)
		if len(snap.Reports) > 1 {
			for _, report := range snap.Reports[1:] {
				_ = order.Update(report)
			}
		}
		if order.Info().OrderID >= e.nextOrderID.Load() {
			e.nextOrderID.Store(order.Info().OrderID + 1)
		}
		e.driver.Recover(order)
		e.logger.Info("recovered open order", "order_id", order.Info().OrderID, "account", snap.Account)
	}
	return nil
}

// Submit constructs and submits a new order on account's behalf, arming the
// account with its default risk parameters the first time it's seen and
// persisting the order before it is handed to the matcher.
func (e *Engine) Submit(account string, fields domain.OrderFields) (*domain.PrimitiveOrder, error) {
	fields.Account = account
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if err := e.boardLot.Submit(fields); err != nil {
		return nil, err
	}
	e.armAccount(account)

	info := domain.OrderInfo{
		Fields:            fields,
		SubmissionAccount: account,
		OrderID:           e.nextOrderID.Add(1),
		Timestamp:         time.Now(),
	}
	order := domain.NewPrimitiveOrder(info)

	if err := e.snapshot.SaveOrder(account, info); err != nil {
		e.logger.Error("failed to persist new order", "order_id", info.OrderID, "error", err)
	}
	if err := e.snapshot.AppendReport(info.OrderID, order.LastReport()); err != nil {
		e.logger.Error("failed to persist initial report", "order_id", info.OrderID, "error", err)
	}

	e.driver.Submit(order)
	return order, nil
}

// armAccount installs the configured default risk parameters for account
// the first time it is seen, so the risk controller's evaluation loop has
// non-zero limits to check fills against from the very first fill.
func (e *Engine) armAccount(account string) {
	e.seenAccountsMu.Lock()
	if e.seenAccounts[account] {
		e.seenAccountsMu.Unlock()
		return
	}
	e.seenAccounts[account] = true
	e.seenAccountsMu.Unlock()

	e.riskCtl.SetParameters(account, risk.RiskParameters{
		Currency:       e.cfg.Risk.DefaultCurrency,
		BuyingPower:    money.MustParse(e.cfg.Risk.DefaultBuyingPower),
		AllowedState:   risk.StateActive,
		NetLoss:        money.MustParse(e.cfg.Risk.DefaultNetLoss),
		LossFromTop:    money.MustParse(e.cfg.Risk.DefaultLossFromTop),
		TransitionTime: e.cfg.Risk.DefaultTransitionTime,
	})
}

// onFill is internal/matcher.Driver's OnFill callback: it annotates the
// report with venue fees via internal/feetable, persists the annotated
// report, and feeds the trade to the risk controller.
func (e *Engine) onFill(order *domain.PrimitiveOrder, report domain.ExecutionReport) {
	fields := order.Info().Fields

	annotated := e.feeTable.Apply(fields, report)
	if err := e.snapshot.AppendReport(order.Info().OrderID, annotated); err != nil {
		e.logger.Error("failed to persist fill", "order_id", order.Info().OrderID, "error", err)
	}

	totalFees := annotated.ExecutionFee.Add(annotated.ProcessingFee).Add(annotated.Commission)
	e.riskCtl.RecordFill(risk.Fill{
		Account:  fields.Account,
		Security: fields.Security,
		Currency: fields.Currency,
		Side:     fields.Side,
		Quantity: annotated.LastQuantity,
		Price:    annotated.LastPrice,
		Fees:     totalFees,
	})
}

// Stop gracefully shuts down: cancels all contexts, waits for goroutines,
// and closes resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")
	e.cancel()
	if e.simMgr != nil {
		e.simMgr.Stop()
	}
	e.wg.Wait()
	if err := e.snapshot.Close(); err != nil {
		e.logger.Error("failed to close snapshot store", "error", err)
	}
	e.logger.Info("shutdown complete")
}

// Metrics returns the process's Prometheus registry for /metrics.
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// staticDestinations adapts a plain market->destination map, keyed on
// Security.Market with a "DEFAULT" fallback, to risk.Destinations.
type staticDestinations map[string]string

func (d staticDestinations) PreferredDestination(account string, security domain.Security) string {
	if dest, ok := d[security.Market]; ok {
		return dest
	}
	return d["DEFAULT"]
}

// staticRates adapts a configured currency->currency->"num/den" rational
// table to risk.ExchangeRateTable.
type staticRates map[string]map[string]string

func (r staticRates) Rate(from, to string) (money.Rational, error) {
	if from == to {
		return money.NewRational(1, 1), nil
	}
	if byTo, ok := r[from]; ok {
		if raw, ok := byTo[to]; ok {
			var num, den int64
			if _, err := fmt.Sscanf(raw, "%d/%d", &num, &den); err != nil {
				return money.Rational{}, fmt.Errorf("engine: malformed rate %q for %s->%s", raw, from, to)
			}
			return money.NewRational(num, den), nil
		}
	}
	return money.Rational{}, fmt.Errorf("engine: no exchange rate configured for %s->%s", from, to)
}
