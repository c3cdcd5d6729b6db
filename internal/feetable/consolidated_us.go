package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
	"nexuscore/internal/telemetry"
)

// VenueTable is anything that can compute a marketplace execution fee for
// a single fill: the common interface every per-market table above
// satisfies, letting the dispatcher hold them uniformly.
type VenueTable interface {
	Calculate(fields domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money
}

// ConsolidatedUsFeeTable dispatches a US-destined order to its venue
// table and augments the report with processing fee and commission on
// top of the venue's execution fee, grounded on original_source
// ConsolidatedUsFeeTable.hpp.
type ConsolidatedUsFeeTable struct {
	Venues map[string]VenueTable // keyed by destination: "ARCA", "BATS", "BATY", "EDGA", "EDGX", "NASDAQ", "NYSE", "AMEX"

	ClearingRate money.Money // per-share clearing fee
	TafRate      money.Money // per-share FINRA TAF
	SecRate      money.Rational // SEC fee rate applied to notional, BID fills only
	NsccRate     money.Rational // NSCC clearing rate applied to notional
	SpireRate    money.Money // platform's own per-share commission

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewConsolidatedUsFeeTable constructs a dispatcher over the given
// per-destination venue tables. metrics may be nil.
func NewConsolidatedUsFeeTable(venues map[string]VenueTable, logger *slog.Logger, metrics *telemetry.Metrics) *ConsolidatedUsFeeTable {
	return &ConsolidatedUsFeeTable{Venues: venues, logger: logger, metrics: metrics}
}

// Fee computes the consolidated execution fee for (fields, report): the
// destination venue's table, looked up by fields.Destination.
func (c *ConsolidatedUsFeeTable) Fee(fields domain.OrderFields, report domain.ExecutionReport) (money.Money, bool) {
	venue, ok := c.Venues[fields.Destination]
	if !ok {
		return money.Zero, false
	}
	c.metrics.FeeCalculation(fields.Destination)
	return venue.Calculate(fields, report, c.logger), true
}

// Apply produces a new report whose execution_fee, processing_fee, and
// commission are the incoming report's values plus this dispatch's
// computed additions — additive, so repeated application across partial
// annotation accumulates correctly per spec.md §4.3.
func (c *ConsolidatedUsFeeTable) Apply(fields domain.OrderFields, report domain.ExecutionReport) domain.ExecutionReport {
	out := report

	venueFee, ok := c.Fee(fields, report)
	if ok {
		out.ExecutionFee = out.ExecutionFee.Add(venueFee)
	}

	if report.LastQuantity != 0 {
		notional := report.LastPrice.MulInt64(report.LastQuantity)

		processing := c.ClearingRate.MulInt64(report.LastQuantity).Add(c.TafRate.MulInt64(report.LastQuantity))
		if fields.Side == domain.BID {
			processing = processing.Add(notional.MulRational(c.SecRate))
		}
		processing = processing.Add(money.Cent)
		processing = processing.Add(notional.MulRational(c.NsccRate))
		processing = money.Ceil(processing, 3)
		out.ProcessingFee = out.ProcessingFee.Add(processing)

		out.Commission = out.Commission.Add(c.SpireRate.MulInt64(report.LastQuantity))
	}

	return out
}
