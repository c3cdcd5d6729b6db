// rest_venue.go implements RESTVenueDriver, a VenueDriver backed by a real
// out-of-process execution venue: a go-resty REST client for submit/cancel,
// rate-limited per-category exactly like the teacher's exchange.Client, and
// a gorilla/websocket feed (auto-reconnecting with backoff, grounded on the
// teacher's exchange/ws.go) that republishes the venue's own execution
// reports back onto the PrimitiveOrder they belong to.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// RESTVenueConfig configures a RESTVenueDriver.
type RESTVenueConfig struct {
	BaseURL string
	FeedURL string
	Timeout time.Duration
	// DryRun fakes immediate acknowledgement without any network call,
	// mirroring the teacher's Client.PostOrders dryRun branch exactly.
	DryRun bool
	// RateLimit is this venue's own published per-category burst/refill
	// budget. A category whose per-second rate is zero falls back, burst
	// and rate together, to a conservative generic default (see
	// withDefaults) rather than any one venue's numbers; a zero burst with a
	// positive rate is kept as given — callers talking to a real destination should set
	// these from its published limits.
	RateLimit RateLimitConfig
}

// RateLimitConfig is the burst-capacity/refill-rate pair newVenueRateLimiter
// needs for each of the three REST operation categories it gates.
type RateLimitConfig struct {
	OrderBurst, OrderPerSec   float64
	CancelBurst, CancelPerSec float64
	BookBurst, BookPerSec     float64
}

// defaultRateLimit supplies the burst/rate pair of every category whose
// per-second rate in RESTVenueConfig.RateLimit is left unset, so a RESTVenueDriver constructed without explicit limits
// still throttles itself instead of hammering whatever's behind BaseURL.
var defaultRateLimit = RateLimitConfig{
	OrderBurst: 50, OrderPerSec: 10,
	CancelBurst: 50, CancelPerSec: 10,
	BookBurst: 25, BookPerSec: 5,
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	d := defaultRateLimit
	if c.OrderPerSec > 0 {
		d.OrderBurst, d.OrderPerSec = c.OrderBurst, c.OrderPerSec
	}
	if c.CancelPerSec > 0 {
		d.CancelBurst, d.CancelPerSec = c.CancelBurst, c.CancelPerSec
	}
	if c.BookPerSec > 0 {
		d.BookBurst, d.BookPerSec = c.BookBurst, c.BookPerSec
	}
	return d
}

// wireReport is the venue's on-the-wire execution report shape, carried
// over both the REST submit acknowledgement path (none needed here — acks
// arrive over the feed) and the websocket report feed.
type wireReport struct {
	OrderID       int64     `json:"order_id"`
	Status        string    `json:"status"`
	LastQuantity  int64     `json:"last_quantity"`
	LastPrice     string    `json:"last_price"`
	LiquidityFlag string    `json:"liquidity_flag"`
	Timestamp     time.Time `json:"timestamp"`
}

// RESTVenueDriver submits and cancels orders against a real venue over
// REST, and relays that venue's asynchronous execution reports from its
// websocket feed back onto the PrimitiveOrder objects it was given —
// satisfying matcher.VenueDriver for a non-simulated downstream.
type RESTVenueDriver struct {
	cfg    RESTVenueConfig
	http   *resty.Client
	rl     *venueRateLimiter
	logger *slog.Logger

	mu     sync.Mutex
	orders map[int64]*domain.PrimitiveOrder

	reports chan domain.ExecutionReport
}

// NewRESTVenueDriver constructs a REST-backed VenueDriver.
func NewRESTVenueDriver(cfg RESTVenueConfig, logger *slog.Logger) *RESTVenueDriver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	rl := cfg.RateLimit.withDefaults()

	return &RESTVenueDriver{
		cfg:  cfg,
		http: httpClient,
		rl: newVenueRateLimiter(
			rl.OrderBurst, rl.OrderPerSec,
			rl.CancelBurst, rl.CancelPerSec,
			rl.BookBurst, rl.BookPerSec,
		),
		logger:  logger.With("component", "rest_venue_driver"),
		orders:  make(map[int64]*domain.PrimitiveOrder),
		reports: make(chan domain.ExecutionReport, 256),
	}
}

// Reports satisfies VenueDriver.
func (v *RESTVenueDriver) Reports() <-chan domain.ExecutionReport { return v.reports }

// Run connects the report feed and reconnects with backoff until ctx is
// canceled. Callers run this in its own goroutine alongside Driver.Run.
func (v *RESTVenueDriver) Run(ctx context.Context) error {
	feed := newReportFeed(v.cfg.FeedURL, v.onFeedReport, v.logger)
	return feed.Run(ctx)
}

func (v *RESTVenueDriver) track(order *domain.PrimitiveOrder) {
	v.mu.Lock()
	v.orders[order.Info().OrderID] = order
	v.mu.Unlock()
}

// Submit sends order to the venue. In dry-run mode it fakes an immediate
// NEW acknowledgement without a network call, exactly like the teacher's
// Client.PostOrders. Otherwise the venue's own NEW acknowledgement is
// expected to arrive asynchronously over the report feed.
func (v *RESTVenueDriver) Submit(order *domain.PrimitiveOrder) {
	v.track(order)
	if v.cfg.DryRun {
		v.logger.Info("DRY-RUN: would submit order", "order_id", order.Info().OrderID)
		v.transition(order, domain.New, order.Info().Timestamp)
		return
	}
	go v.submitRemote(order)
}

func (v *RESTVenueDriver) submitRemote(order *domain.PrimitiveOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), v.cfg.Timeout)
	defer cancel()
	if err := v.rl.Order.Wait(ctx); err != nil {
		v.reject(order, fmt.Sprintf("rate limit wait: %v", err))
		return
	}

	fields := order.Info().Fields
	payload := map[string]any{
		"order_id":      order.Info().OrderID,
		"symbol":        fields.Security.Symbol,
		"market":        fields.Security.Market,
		"side":          fields.Side,
		"type":          fields.Type,
		"time_in_force": fields.TimeInForce,
		"quantity":      fields.Quantity,
		"price":         fields.Price.String(),
		"destination":   fields.Destination,
	}
	resp, err := v.http.R().SetContext(ctx).SetBody(payload).Post("/orders")
	if err != nil {
		v.reject(order, fmt.Sprintf("submit order: %v", err))
		return
	}
	if resp.StatusCode() >= 300 {
		v.reject(order, fmt.Sprintf("submit order: status %d: %s", resp.StatusCode(), resp.String()))
	}
}

// Cancel requests cancellation of order at the venue. The resulting
// PENDING_CANCEL/CANCELED transition arrives asynchronously over the
// report feed, same as a real venue's cancel acknowledgement.
func (v *RESTVenueDriver) Cancel(order *domain.PrimitiveOrder) {
	if order == nil {
		return
	}
	if v.cfg.DryRun {
		v.logger.Info("DRY-RUN: would cancel order", "order_id", order.Info().OrderID)
		v.transition(order, domain.Canceled, time.Now())
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.cfg.Timeout)
		defer cancel()
		if err := v.rl.Cancel.Wait(ctx); err != nil {
			v.logger.Warn("cancel rate limit wait failed", "order_id", order.Info().OrderID, "error", err)
			return
		}
		resp, err := v.http.R().SetContext(ctx).Delete(fmt.Sprintf("/orders/%d", order.Info().OrderID))
		if err != nil || resp.StatusCode() >= 300 {
			v.logger.Warn("cancel request failed", "order_id", order.Info().OrderID, "error", err)
		}
	}()
}

// Update applies an externally-sourced report directly, unless order is
// already terminal.
func (v *RESTVenueDriver) Update(order *domain.PrimitiveOrder, report domain.ExecutionReport) {
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() {
			return
		}
		updated := report
		updated.Sequence = 0
		if updated.Timestamp.IsZero() {
			updated.Timestamp = time.Now()
		}
		if appendReport(updated) == nil {
			v.publish(updated)
		}
	})
}

// Recover re-registers order for report relay without resubmitting it.
func (v *RESTVenueDriver) Recover(order *domain.PrimitiveOrder) {
	v.track(order)
}

func (v *RESTVenueDriver) reject(order *domain.PrimitiveOrder, reason string) {
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		rejected := domain.BuildUpdatedReport(last, domain.Rejected, time.Now())
		rejected.AdditionalTags = map[string]string{"reason": reason}
		if appendReport(rejected) == nil {
			v.publish(rejected)
		}
	})
}

func (v *RESTVenueDriver) transition(order *domain.PrimitiveOrder, status domain.OrderStatus, ts time.Time) {
	order.With(func(st domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if st.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		updated := domain.BuildUpdatedReport(last, status, ts)
		if appendReport(updated) == nil {
			v.publish(updated)
		}
	})
}

func (v *RESTVenueDriver) publish(report domain.ExecutionReport) {
	select {
	case v.reports <- report:
	default:
		v.logger.Warn("report publish queue full, dropping report", "order_id", report.ID)
	}
}

// onFeedReport applies one parsed wire report from the venue's report feed
// to the order it belongs to, then republishes it so the matcher's
// report-dispatch goroutine observes it too.
func (v *RESTVenueDriver) onFeedReport(w wireReport) {
	v.mu.Lock()
	order, ok := v.orders[w.OrderID]
	v.mu.Unlock()
	if !ok {
		v.logger.Debug("feed report for untracked order, ignoring", "order_id", w.OrderID)
		return
	}

	price, err := money.Parse(w.LastPrice)
	if err != nil {
		v.logger.Warn("unparseable feed price, treating as zero", "order_id", w.OrderID, "raw", w.LastPrice)
		price = money.Zero
	}

	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		updated := domain.BuildUpdatedReport(last, domain.OrderStatus(w.Status), w.Timestamp)
		updated.LastQuantity = w.LastQuantity
		updated.LastPrice = price
		updated.LiquidityFlag = w.LiquidityFlag
		if appendReport(updated) == nil {
			v.publish(updated)
		}
	})
}

// reportFeed is a single auto-reconnecting websocket connection to the
// venue's execution report stream, grounded on the teacher's
// exchange/ws.go WSFeed.Run: exponential backoff from 1s up to a 30s cap,
// a read deadline so a silent server is detected instead of hanging.
type reportFeed struct {
	url      string
	onReport func(wireReport)
	logger   *slog.Logger
}

func newReportFeed(url string, onReport func(wireReport), logger *slog.Logger) *reportFeed {
	return &reportFeed{url: url, onReport: onReport, logger: logger.With("component", "venue_report_feed")}
}

func (f *reportFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("report feed disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *reportFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	f.logger.Info("report feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var w wireReport
		if err := json.Unmarshal(msg, &w); err != nil {
			f.logger.Debug("ignoring non-json feed message", "data", string(msg))
			continue
		}
		f.onReport(w)
	}
}
