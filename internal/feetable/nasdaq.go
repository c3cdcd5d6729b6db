package feetable

import (
	"log/slog"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// NasdaqTable is Nasdaq's fee table: the standard shape.
type NasdaqTable struct {
	StandardTable
}

func (t NasdaqTable) Calculate(_ domain.OrderFields, report domain.ExecutionReport, logger *slog.Logger) money.Money {
	return t.calculate(report, logger)
}
