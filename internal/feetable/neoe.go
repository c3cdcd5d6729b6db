package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// NeoeTable implements NEO Exchange's fee rules: one of two configured
// rate grids (general, or interlisted for securities cross-listed on a US
// venue), each keyed by the simpler {DEFAULT, SUBDOLLAR} price classes
// NEOE uses (it has no sub-dime band), crossed with ACTIVE/PASSIVE.
type NeoeTable struct {
	General      NeoeGrid
	Interlisted  NeoeGrid
}

// NeoeGrid is one of NEOE's two rate grids.
type NeoeGrid struct {
	ActiveDefault    money.Money
	PassiveDefault   money.Money
	ActiveSubDollar  money.Rational
	PassiveSubDollar money.Rational
}

// Calculate computes NEOE's execution fee. fields.Tags["interlisted"]
// selects the interlisted grid; its absence selects the general grid.
func (t NeoeTable) Calculate(fields domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	if report.LastQuantity == 0 {
		return money.Zero
	}
	grid := t.General
	if _, interlisted := fields.Tags["interlisted"]; interlisted {
		grid = t.Interlisted
	}

	liquidity := ClassifyLiquidity(report.LiquidityFlag, logger)
	if report.LastPrice.LessThan(money.One) {
		notional := report.LastPrice.MulInt64(report.LastQuantity)
		if liquidity == Passive {
			return notional.MulRational(grid.PassiveSubDollar)
		}
		return notional.MulRational(grid.ActiveSubDollar)
	}
	if liquidity == Passive {
		return grid.PassiveDefault.MulInt64(report.LastQuantity)
	}
	return grid.ActiveDefault.MulInt64(report.LastQuantity)
}
