package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// NyseTable is the worked example from spec.md §4.3.a: a 2-D grid keyed by
// (liquidity type, category) rather than the simpler ACTIVE/PASSIVE x
// price-class shape the other venues use, because NYSE's liquidity flag
// itself determines the category (hidden, on-open, on-close, retail)
// instead of the fill price alone. Grounded on original_source
// NyseFeeTable.hpp.
type NyseTable struct {
	ActiveDefault  money.Money
	PassiveDefault money.Money
	ActiveHidden   money.Money
	PassiveHidden  money.Money
	PassiveOnOpen  money.Money
	ActiveOnClose  money.Money
	PassiveRetail  money.Money
	ActiveRetail   money.Money

	// ActiveSubDollar/PassiveSubDollar are rational multipliers applied to
	// notional instead of the flat per-share grid above, whenever the fill
	// price is in the sub-dollar band — independent of category.
	ActiveSubDollar  money.Rational
	PassiveSubDollar money.Rational
}

// Calculate implements the NYSE execution fee: classify the report's
// liquidity flag into a (type, category) pair and look up the matching
// per-share rate. Category promotion to HIDDEN requires the order itself
// be marked pegged/hidden (IsPeggedHidden); it is not inferred from price.
// Sub-dollar fills use the rational notional rate regardless of category.
func (t NyseTable) Calculate(fields domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	if report.LastQuantity == 0 {
		return money.Zero
	}
	class := ClassifyNyse(report.LiquidityFlag, IsPeggedHidden(fields), logger)

	if ClassifyPrice(report.LastPrice) == SubDollar {
		notional := report.LastPrice.MulInt64(report.LastQuantity)
		if class.Type == Passive {
			return notional.MulRational(t.PassiveSubDollar)
		}
		return notional.MulRational(t.ActiveSubDollar)
	}

	var rate money.Money
	switch {
	case class.Category == Hidden && class.Type == Active:
		rate = t.ActiveHidden
	case class.Category == Hidden && class.Type == Passive:
		rate = t.PassiveHidden
	case class.Category == OnOpen:
		rate = t.PassiveOnOpen
	case class.Category == OnClose:
		rate = t.ActiveOnClose
	case class.Category == Retail && class.Type == Active:
		rate = t.ActiveRetail
	case class.Category == Retail && class.Type == Passive:
		rate = t.PassiveRetail
	case class.Type == Passive:
		rate = t.PassiveDefault
	default:
		rate = t.ActiveDefault
	}
	return rate.MulInt64(report.LastQuantity)
}
