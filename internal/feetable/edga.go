package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// EdgaTable is Cboe EDGA's fee table: the standard shape, Cboe's other
// inverted book alongside BYX.
type EdgaTable struct {
	StandardTable
}

func (t EdgaTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
