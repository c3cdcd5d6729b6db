package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// AmexTable is NYSE American (AMEX)'s fee table: the standard shape.
type AmexTable struct {
	StandardTable
}

func (t AmexTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
