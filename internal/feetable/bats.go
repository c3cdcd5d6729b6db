package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// BatsTable is Cboe BZX (BATS)'s fee table: the standard shape.
type BatsTable struct {
	StandardTable
}

func (t BatsTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
