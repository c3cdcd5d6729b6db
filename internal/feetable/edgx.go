package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// EdgxTable is Cboe EDGX's fee table: the standard shape.
type EdgxTable struct {
	StandardTable
}

func (t EdgxTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
