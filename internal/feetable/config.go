package feetable

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"nexuscore/internal/money"
	"nexuscore/internal/telemetry"
)

// feeRow is one (category, type) -> rate entry as it appears in YAML,
// e.g. `{category: DEFAULT, type: ACTIVE, rate: "0.003000"}`. Sub-dollar
// rows carry a rational numerator/denominator pair instead of rate.
type feeRow struct {
	Category string `mapstructure:"category"`
	Type     string `mapstructure:"type"`
	Rate     string `mapstructure:"rate"`
	Num      int64  `mapstructure:"numerator"`
	Den      int64  `mapstructure:"denominator"`
}

// feeDocument is the shape of a single venue's YAML configuration file:
// a required `fee_table` grid, an optional `sub_dollar_table` of
// rationals, and (PURE only) a path to a designated-securities list.
type feeDocument struct {
	FeeTable               []feeRow `mapstructure:"fee_table"`
	SubDollarTable         []feeRow `mapstructure:"sub_dollar_table"`
	DesignatedSecuritiesPath string `mapstructure:"designated_securities_path"`
	OddLotRate             string   `mapstructure:"odd_lot_rate"`
	SubDimeCap             string   `mapstructure:"sub_dime_cap"`
}

// loadDocument reads and validates a single venue fee-table YAML file.
// The loader rejects a configuration missing the required fee_table grid,
// per spec.md §6.
func loadDocument(path string) (feeDocument, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return feeDocument{}, fmt.Errorf("feetable: read %s: %w", path, err)
	}
	var doc feeDocument
	if err := v.Unmarshal(&doc); err != nil {
		return feeDocument{}, fmt.Errorf("feetable: unmarshal %s: %w", path, err)
	}
	if len(doc.FeeTable) == 0 {
		return feeDocument{}, fmt.Errorf("feetable: %s is missing required fee_table grid", path)
	}
	return doc, nil
}

func rowRate(rows []feeRow, category, typ string) money.Money {
	for _, r := range rows {
		if strings.EqualFold(r.Category, category) && strings.EqualFold(r.Type, typ) {
			return money.MustParse(r.Rate)
		}
	}
	return money.Zero
}

func rowRational(rows []feeRow, category, typ string) money.Rational {
	for _, r := range rows {
		if strings.EqualFold(r.Category, category) && strings.EqualFold(r.Type, typ) {
			return money.NewRational(r.Num, r.Den)
		}
	}
	return money.NewRational(0, 1)
}

// LoadStandardTable loads one of the ARCA/BATS/BATY/EDGA/EDGX/NASDAQ/AMEX
// configuration documents into a StandardTable.
func LoadStandardTable(path string) (StandardTable, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return StandardTable{}, err
	}
	return StandardTable{
		ActiveDefault:    rowRate(doc.FeeTable, "DEFAULT", "ACTIVE"),
		PassiveDefault:   rowRate(doc.FeeTable, "DEFAULT", "PASSIVE"),
		ActiveSubDime:    rowRate(doc.FeeTable, "SUB_DIME", "ACTIVE"),
		PassiveSubDime:   rowRate(doc.FeeTable, "SUB_DIME", "PASSIVE"),
		ActiveSubDollar:  rowRational(doc.SubDollarTable, "SUB_DOLLAR", "ACTIVE"),
		PassiveSubDollar: rowRational(doc.SubDollarTable, "SUB_DOLLAR", "PASSIVE"),
	}, nil
}

// LoadNyseTable loads NYSE's configuration document into a NyseTable.
func LoadNyseTable(path string) (NyseTable, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return NyseTable{}, err
	}
	return NyseTable{
		ActiveDefault:    rowRate(doc.FeeTable, "DEFAULT", "ACTIVE"),
		PassiveDefault:   rowRate(doc.FeeTable, "DEFAULT", "PASSIVE"),
		ActiveHidden:     rowRate(doc.FeeTable, "HIDDEN", "ACTIVE"),
		PassiveHidden:    rowRate(doc.FeeTable, "HIDDEN", "PASSIVE"),
		PassiveOnOpen:    rowRate(doc.FeeTable, "ON_OPEN", "PASSIVE"),
		ActiveOnClose:    rowRate(doc.FeeTable, "ON_CLOSE", "ACTIVE"),
		PassiveRetail:    rowRate(doc.FeeTable, "RETAIL", "PASSIVE"),
		ActiveRetail:     rowRate(doc.FeeTable, "RETAIL", "ACTIVE"),
		ActiveSubDollar:  rowRational(doc.SubDollarTable, "SUB_DOLLAR", "ACTIVE"),
		PassiveSubDollar: rowRational(doc.SubDollarTable, "SUB_DOLLAR", "PASSIVE"),
	}, nil
}

// LoadPureTable loads PURE's configuration document, including its
// designated-securities list, into a PureTable.
func LoadPureTable(tsxPath, tsxvPath string, logger *slog.Logger) (PureTable, error) {
	tsxDoc, err := loadDocument(tsxPath)
	if err != nil {
		return PureTable{}, err
	}
	tsxvDoc, err := loadDocument(tsxvPath)
	if err != nil {
		return PureTable{}, err
	}

	designated := make(map[string]struct{})
	if tsxDoc.DesignatedSecuritiesPath != "" {
		raw, err := os.ReadFile(tsxDoc.DesignatedSecuritiesPath)
		if err != nil {
			return PureTable{}, fmt.Errorf("feetable: read designated securities list: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			symbol := strings.TrimSpace(line)
			if symbol != "" {
				designated[symbol] = struct{}{}
			}
		}
	}

	oddLot := money.Zero
	if tsxDoc.OddLotRate != "" {
		oddLot = money.MustParse(tsxDoc.OddLotRate)
	}
	cap := money.Zero
	if tsxvDoc.SubDimeCap != "" {
		cap = money.MustParse(tsxvDoc.SubDimeCap)
	}

	return PureTable{
		TsxListed: StandardTable{
			ActiveDefault:    rowRate(tsxDoc.FeeTable, "DEFAULT", "ACTIVE"),
			PassiveDefault:   rowRate(tsxDoc.FeeTable, "DEFAULT", "PASSIVE"),
			ActiveSubDime:    rowRate(tsxDoc.FeeTable, "SUB_DIME", "ACTIVE"),
			PassiveSubDime:   rowRate(tsxDoc.FeeTable, "SUB_DIME", "PASSIVE"),
			ActiveSubDollar:  rowRational(tsxDoc.SubDollarTable, "SUB_DOLLAR", "ACTIVE"),
			PassiveSubDollar: rowRational(tsxDoc.SubDollarTable, "SUB_DOLLAR", "PASSIVE"),
		},
		TsxvListed: StandardTable{
			ActiveDefault:    rowRate(tsxvDoc.FeeTable, "DEFAULT", "ACTIVE"),
			PassiveDefault:   rowRate(tsxvDoc.FeeTable, "DEFAULT", "PASSIVE"),
			ActiveSubDime:    rowRate(tsxvDoc.FeeTable, "SUB_DIME", "ACTIVE"),
			PassiveSubDime:   rowRate(tsxvDoc.FeeTable, "SUB_DIME", "PASSIVE"),
			ActiveSubDollar:  rowRational(tsxvDoc.SubDollarTable, "SUB_DOLLAR", "ACTIVE"),
			PassiveSubDollar: rowRational(tsxvDoc.SubDollarTable, "SUB_DOLLAR", "PASSIVE"),
		},
		OddLotRate:           oddLot,
		TsxvSubDimeCap:       cap,
		TsxDesignatedActive:  rowRate(tsxDoc.FeeTable, "DESIGNATED", "ACTIVE"),
		TsxDesignatedPassive: rowRate(tsxDoc.FeeTable, "DESIGNATED", "PASSIVE"),
		DesignatedSecurities: designated,
	}, nil
}

// LoadNeoeTable loads NEOE's general and interlisted configuration
// documents into a NeoeTable.
func LoadNeoeTable(generalPath, interlistedPath string) (NeoeTable, error) {
	generalDoc, err := loadDocument(generalPath)
	if err != nil {
		return NeoeTable{}, err
	}
	interlistedDoc, err := loadDocument(interlistedPath)
	if err != nil {
		return NeoeTable{}, err
	}
	return NeoeTable{
		General: NeoeGrid{
			ActiveDefault:    rowRate(generalDoc.FeeTable, "DEFAULT", "ACTIVE"),
			PassiveDefault:   rowRate(generalDoc.FeeTable, "DEFAULT", "PASSIVE"),
			ActiveSubDollar:  rowRational(generalDoc.SubDollarTable, "SUBDOLLAR", "ACTIVE"),
			PassiveSubDollar: rowRational(generalDoc.SubDollarTable, "SUBDOLLAR", "PASSIVE"),
		},
		Interlisted: NeoeGrid{
			ActiveDefault:    rowRate(interlistedDoc.FeeTable, "DEFAULT", "ACTIVE"),
			PassiveDefault:   rowRate(interlistedDoc.FeeTable, "DEFAULT", "PASSIVE"),
			ActiveSubDollar:  rowRational(interlistedDoc.SubDollarTable, "SUBDOLLAR", "ACTIVE"),
			PassiveSubDollar: rowRational(interlistedDoc.SubDollarTable, "SUBDOLLAR", "PASSIVE"),
		},
	}, nil
}

// LoadConsolidatedUs loads the consolidated US dispatcher's own rates
// (clearing, TAF, SEC, NSCC, spire) plus the full set of venue tables
// named in destinations, keyed by destination.
func LoadConsolidatedUs(ratesPath string, destinations map[string]string, logger *slog.Logger, metrics *telemetry.Metrics) (*ConsolidatedUsFeeTable, error) {
	v := viper.New()
	v.SetConfigFile(ratesPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("feetable: read %s: %w", ratesPath, err)
	}

	var rates struct {
		ClearingRate string `mapstructure:"clearing_rate"`
		TafRate      string `mapstructure:"taf_rate"`
		SecNum       int64  `mapstructure:"sec_rate_numerator"`
		SecDen       int64  `mapstructure:"sec_rate_denominator"`
		NsccNum      int64  `mapstructure:"nscc_rate_numerator"`
		NsccDen      int64  `mapstructure:"nscc_rate_denominator"`
		SpireRate    string `mapstructure:"spire_rate"`
	}
	if err := v.Unmarshal(&rates); err != nil {
		return nil, fmt.Errorf("feetable: unmarshal %s: %w", ratesPath, err)
	}

	venues := make(map[string]VenueTable, len(destinations))
	for destination, path := range destinations {
		table, err := loadVenueByDestination(destination, path)
		if err != nil {
			return nil, err
		}
		venues[destination] = table
	}

	table := NewConsolidatedUsFeeTable(venues, logger, metrics)
	table.ClearingRate = money.MustParse(rates.ClearingRate)
	table.TafRate = money.MustParse(rates.TafRate)
	table.SecRate = money.NewRational(rates.SecNum, rates.SecDen)
	table.NsccRate = money.NewRational(rates.NsccNum, rates.NsccDen)
	table.SpireRate = money.MustParse(rates.SpireRate)
	return table, nil
}

func loadVenueByDestination(destination, path string) (VenueTable, error) {
	switch strings.ToUpper(destination) {
	case "NYSE":
		t, err := LoadNyseTable(path)
		return t, err
	default:
		t, err := LoadStandardTable(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(destination) {
		case "ARCA":
			return ArcaTable{t}, nil
		case "BATS":
			return BatsTable{t}, nil
		case "BATY":
			return BatyTable{t}, nil
		case "EDGA":
			return EdgaTable{t}, nil
		case "EDGX":
			return EdgxTable{t}, nil
		case "NASDAQ":
			return NasdaqTable{t}, nil
		case "AMEX":
			return AmexTable{t}, nil
		default:
			return nil, fmt.Errorf("feetable: unknown US destination %q", destination)
		}
	}
}
