package engine

import (
	"path/filepath"
	"testing"
	"time"

	"nexuscore/internal/config"
	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Router: config.RouterConfig{RendezvousTimeout: 200 * time.Millisecond},
		Risk: config.RiskConfig{
			TickInterval:          20 * time.Millisecond,
			DefaultCurrency:       "USD",
			DefaultBuyingPower:    "250000.00",
			DefaultNetLoss:        "10000.00",
			DefaultLossFromTop:    "5000.00",
			DefaultTransitionTime: 60 * time.Second,
			Destinations:          map[string]string{"DEFAULT": "NASDAQ", "NASDAQ": "NASDAQ"},
		},
		FeeTable: config.FeeTableConfig{
			RatesPath:    "../../configs/fees/rates.yaml",
			Destinations: map[string]string{"NASDAQ": "../../configs/fees/nasdaq.yaml"},
		},
		Venue: config.VenueConfig{Simulated: true},
		Store: config.StoreConfig{Path: filepath.Join(dir, "snapshots.db")},
	}
}

func testSecurity() domain.Security {
	return domain.Security{Symbol: "XYZ", Market: "NASDAQ", Country: "US"}
}

func waitForStatus(t *testing.T, order *domain.PrimitiveOrder, want domain.OrderStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if order.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("order never reached status %v, last status %v", want, order.Status())
}

// TestEngineSubmitFillsAgainstSimulatedVenue exercises the full wire-up end
// to end: Submit arms the account's risk defaults, persists the order,
// hands it to the matcher, and the matcher forwards the unmatched residue
// to the simulated venue, which fills it against a latched BBO. The fill
// should come back annotated with fee-table output and recorded by the
// risk controller.
func TestEngineSubmitFillsAgainstSimulatedVenue(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	security := testSecurity()
	e.driver.OnBbo(security, domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("10.00"), Size: 1000},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("10.01"), Size: 1000},
	})
	e.simMgr.EngineFor(security).OnBbo(domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("10.00"), Size: 1000},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("10.01"), Size: 1000},
	})

	order, err := e.Submit("acct-1", domain.OrderFields{
		Security:    security,
		Currency:    "USD",
		Type:        domain.LIMIT,
		Side:        domain.BID,
		Destination: "NASDAQ",
		Quantity:    100,
		Price:       money.MustParse("10.01"),
		TimeInForce: domain.DAY,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForStatus(t, order, domain.Filled)

	last := order.LastReport()
	if last.LastQuantity != 100 {
		t.Fatalf("last fill quantity = %d, want 100", last.LastQuantity)
	}
	if last.ExecutionFee.IsZero() {
		t.Fatalf("expected a non-zero venue execution fee annotated onto the fill")
	}
	if last.ProcessingFee.IsZero() {
		t.Fatalf("expected a non-zero processing fee annotated onto the fill")
	}
}

// TestEngineArmAccountIsIdempotent checks that a second order from the same
// account does not re-install default risk parameters, matching the
// teacher's lazy-first-reference population idiom.
func TestEngineArmAccountIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.armAccount("acct-1")
	if !e.seenAccounts["acct-1"] {
		t.Fatalf("expected acct-1 to be marked seen")
	}
	// A second call must not panic or block; whether it re-installs the
	// default risk parameters is not checked here.
	e.armAccount("acct-1")
}

func TestStaticDestinationsFallback(t *testing.T) {
	d := staticDestinations{"NASDAQ": "NASDAQ", "DEFAULT": "NYSE"}

	if got := d.PreferredDestination("acct-1", domain.Security{Market: "NASDAQ"}); got != "NASDAQ" {
		t.Fatalf("PreferredDestination(NASDAQ) = %q, want NASDAQ", got)
	}
	if got := d.PreferredDestination("acct-1", domain.Security{Market: "ARCA"}); got != "NYSE" {
		t.Fatalf("PreferredDestination(ARCA) = %q, want fallback NYSE", got)
	}
}

func TestStaticRatesLookup(t *testing.T) {
	r := staticRates{"USD": {"CAD": "134/100"}}
	one := money.MustParse("1.00")

	same, err := r.Rate("USD", "USD")
	if err != nil {
		t.Fatalf("Rate(USD, USD): %v", err)
	}
	if got := one.MulRational(same).String(); got != "1.000000" {
		t.Fatalf("Rate(USD, USD) applied to 1.00 = %s, want 1.000000", got)
	}

	rate, err := r.Rate("USD", "CAD")
	if err != nil {
		t.Fatalf("Rate(USD, CAD): %v", err)
	}
	if got := one.MulRational(rate).String(); got != "1.340000" {
		t.Fatalf("Rate(USD, CAD) applied to 1.00 = %s, want 1.340000", got)
	}

	if _, err := r.Rate("USD", "EUR"); err == nil {
		t.Fatalf("Rate(USD, EUR) should fail: no configured rate")
	}
}
