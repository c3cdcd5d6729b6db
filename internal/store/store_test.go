package store

import (
	"path/filepath"
	"testing"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

func testSecurity() domain.Security {
	return domain.Security{Symbol: "XYZ", Market: "TEST", Country: "US"}
}

func testOrderInfo(id int64) domain.OrderInfo {
	return domain.OrderInfo{
		Fields: domain.OrderFields{
			Account:     "acct-1",
			Security:    testSecurity(),
			Currency:    "USD",
			Type:        domain.LIMIT,
			Side:        domain.BID,
			Destination: "NASDAQ",
			Quantity:    100,
			Price:       money.MustParse("10.00"),
			TimeInForce: domain.DAY,
		},
		SubmissionAccount: "acct-1",
		OrderID:           id,
		Timestamp:         time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestSaveOrderAndLoadOpenOrders(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	info := testOrderInfo(1)
	if err := s.SaveOrder("acct-1", info); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	initial := domain.ExecutionReport{ID: 1, Sequence: 0, Status: domain.PendingNew, Timestamp: info.Timestamp}
	if err := s.AppendReport(1, initial); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}
	newReport := domain.BuildUpdatedReport(initial, domain.New, info.Timestamp.Add(time.Second))
	if err := s.AppendReport(1, newReport); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}

	open, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open orders = %d, want 1", len(open))
	}
	got := open[0]
	if got.Account != "acct-1" {
		t.Errorf("account = %q, want acct-1", got.Account)
	}
	if got.Info.OrderID != 1 {
		t.Errorf("order id = %d, want 1", got.Info.OrderID)
	}
	if got.Info.Fields.Price.Cmp(money.MustParse("10.00")) != 0 {
		t.Errorf("price = %s, want 10.00", got.Info.Fields.Price)
	}
	if len(got.Reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(got.Reports))
	}
	if got.Reports[1].Status != domain.New {
		t.Errorf("last report status = %s, want NEW", got.Reports[1].Status)
	}
}

func TestLoadOpenOrdersExcludesTerminal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	info := testOrderInfo(2)
	if err := s.SaveOrder("acct-1", info); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	initial := domain.ExecutionReport{ID: 2, Sequence: 0, Status: domain.PendingNew, Timestamp: info.Timestamp}
	filled := domain.BuildUpdatedReport(initial, domain.Filled, info.Timestamp.Add(time.Second))
	filled.LastQuantity = 100
	filled.LastPrice = money.MustParse("10.00")
	if err := s.AppendReport(2, initial); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}
	if err := s.AppendReport(2, filled); err != nil {
		t.Fatalf("AppendReport: %v", err)
	}

	open, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("open orders = %d, want 0 (FILLED is terminal)", len(open))
	}
}

func TestAppendReportDuplicateSequenceIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "snapshots.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	info := testOrderInfo(3)
	if err := s.SaveOrder("acct-1", info); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	report := domain.ExecutionReport{ID: 3, Sequence: 0, Status: domain.PendingNew, Timestamp: info.Timestamp}
	if err := s.AppendReport(3, report); err != nil {
		t.Fatalf("first AppendReport: %v", err)
	}
	// A retried append after a crash must not error or duplicate the row.
	if err := s.AppendReport(3, report); err != nil {
		t.Fatalf("duplicate AppendReport: %v", err)
	}

	open, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(open) != 1 || len(open[0].Reports) != 1 {
		t.Fatalf("expected exactly one order with one report, got %+v", open)
	}
}
