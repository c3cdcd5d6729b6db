package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// BatyTable is Cboe BYX (BATY)'s fee table: the standard shape, typically
// configured with an inverted (rebate-like) active/passive relationship
// relative to BATS since BYX is the Cboe "inverted" book.
type BatyTable struct {
	StandardTable
}

func (t BatyTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
