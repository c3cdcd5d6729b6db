package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// PureListingClass distinguishes the two configured rate grids PURE
// maintains: one for TSX-listed securities and one for TSX-Venture-listed
// securities, grounded on original_source PureFeeTable.hpp.
type PureListingClass int

const (
	PureTsxListed PureListingClass = iota
	PureTsxvListed
)

// PureTable implements PURE's bespoke fee rules: separate TSX/TSX-Venture
// rate grids, a flat odd-lot rate, a symmetric cap on sub-dime Venture
// fills, and designated-securities promotion of DEFAULT to DESIGNATED.
type PureTable struct {
	TsxListed   StandardTable
	TsxvListed  StandardTable

	OddLotRate money.Money // flat per-share rate for fills < 100 shares, any class

	TsxvSubDimeCap money.Money // symmetric cap (positive or negative) on sub-dime Venture fee

	TsxDesignatedActive  money.Money
	TsxDesignatedPassive money.Money

	// DesignatedSecurities is the configured set of symbols promoted from
	// DEFAULT to DESIGNATED on the TSX-listed grid.
	DesignatedSecurities map[string]struct{}
}

// Calculate computes PURE's execution fee for a single fill.
func (t PureTable) Calculate(fields domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	if report.LastQuantity == 0 {
		return money.Zero
	}
	if report.LastQuantity < 100 {
		return t.OddLotRate.MulInt64(report.LastQuantity)
	}

	listing := PureTsxListed
	if fields.Security.Market == tsxvMarket {
		listing = PureTsxvListed
	}

	if listing == PureTsxListed {
		if _, designated := t.DesignatedSecurities[fields.Security.Symbol]; designated {
			liquidity := ClassifyLiquidity(report.LiquidityFlag, logger)
			if liquidity == Passive {
				return t.TsxDesignatedPassive.MulInt64(report.LastQuantity)
			}
			return t.TsxDesignatedActive.MulInt64(report.LastQuantity)
		}
		return t.TsxListed.calculate(report, logger)
	}

	fee := t.TsxvListed.calculate(report, logger)
	if ClassifyPrice(report.LastPrice) == SubDime {
		fee = clampSymmetric(fee, t.TsxvSubDimeCap)
	}
	return fee
}

// clampSymmetric bounds fee to [-cap, +cap] when cap is positive.
func clampSymmetric(fee, cap money.Money) money.Money {
	if cap.IsZero() {
		return fee
	}
	if fee.GreaterThan(cap) {
		return cap
	}
	negCap := cap.Neg()
	if fee.LessThan(negCap) {
		return negCap
	}
	return fee
}
