package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// ArcaTable is NYSE Arca's fee table: the standard ACTIVE/PASSIVE x
// DEFAULT/SUB_DOLLAR/SUB_DIME shape.
type ArcaTable struct {
	StandardTable
}

func (t ArcaTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
