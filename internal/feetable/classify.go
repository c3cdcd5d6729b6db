// Package feetable implements the per-market fee calculation pipeline:
// pure functions from (table, order fields, execution report) to the
// marketplace execution fee, plus the consolidated US dispatcher that adds
// platform processing fee and commission on top. Every table is a value
// type loaded from YAML configuration via spf13/viper, the same loader the
// teacher uses for its own Config (internal/config).
package feetable

import (
	"log/slog"
	"sync"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// PriceClass buckets an execution by its fill price.
type PriceClass string

const (
	Default    PriceClass = "DEFAULT"
	SubDollar  PriceClass = "SUB_DOLLAR"
	SubDime    PriceClass = "SUB_DIME"
	Designated PriceClass = "DESIGNATED"
	Hidden     PriceClass = "HIDDEN"
	Cross      PriceClass = "CROSS"
	OnOpen     PriceClass = "ON_OPEN"
	OnClose    PriceClass = "ON_CLOSE"
	Retail     PriceClass = "RETAIL"
)

// ClassifyPrice buckets a fill price into DEFAULT / SUB_DOLLAR / SUB_DIME,
// the three classes common to every venue. Venue-specific category
// promotion (HIDDEN, CROSS, ON_OPEN, ON_CLOSE, RETAIL, DESIGNATED) happens
// on top of this in each venue's own Calculate function.
func ClassifyPrice(price money.Money) PriceClass {
	switch {
	case price.LessThan(money.MustParse("0.10")):
		return SubDime
	case price.LessThan(money.One):
		return SubDollar
	default:
		return Default
	}
}

// Liquidity is whether an execution added or removed resting liquidity.
type Liquidity string

const (
	Active  Liquidity = "ACTIVE"
	Passive Liquidity = "PASSIVE"
	HiddenLiquidity Liquidity = "HIDDEN"
)

var unknownFlagWarned sync.Map // map[string]struct{}, logged once per flag

// ClassifyLiquidity parses the single-character exchange-reported liquidity
// tag. An unknown or empty tag defaults to ACTIVE, logs once per distinct
// flag value (never throws), and proceeds — per SPEC_FULL.md §4.3/§7.
func ClassifyLiquidity(flag string, logger *slog.Logger) Liquidity {
	switch flag {
	case "A", "3", "6", "7", "9":
		return Active
	case "P", "2", "5", "8":
		return Passive
	case "H":
		return HiddenLiquidity
	default:
		if _, loaded := unknownFlagWarned.LoadOrStore(flag, struct{}{}); !loaded && logger != nil {
			logger.Warn("fee table: unknown liquidity flag, defaulting to ACTIVE", "flag", flag)
		}
		return Active
	}
}

// NyseClassification is the result of classifying a report for the NYSE
// table's liquidity-flag-keyed (type, category) mapping described in
// SPEC_FULL.md / spec.md §4.3.a, grounded on original_source NyseFeeTable.hpp.
type NyseClassification struct {
	Type     Liquidity
	Category PriceClass
}

// ClassifyNyse maps NYSE's single-character liquidity flag directly to a
// (type, category) pair, per the exact table in spec.md §4.3:
// '1'->(ACTIVE,HIDDEN?DEFAULT), '2'->(PASSIVE,HIDDEN?DEFAULT), '3'->(ACTIVE,DEFAULT),
// '5'->(PASSIVE,ON_OPEN), '6'->(ACTIVE,ON_CLOSE), '7'->(ACTIVE,ON_CLOSE),
// '8'->(PASSIVE,RETAIL), '9'->(ACTIVE,RETAIL).
func ClassifyNyse(flag string, isHidden bool, logger *slog.Logger) NyseClassification {
	switch flag {
	case "1":
		if isHidden {
			return NyseClassification{Active, Hidden}
		}
		return NyseClassification{Active, Default}
	case "2":
		if isHidden {
			return NyseClassification{Passive, Hidden}
		}
		return NyseClassification{Passive, Default}
	case "3":
		return NyseClassification{Active, Default}
	case "5":
		return NyseClassification{Passive, OnOpen}
	case "6", "7":
		return NyseClassification{Active, OnClose}
	case "8":
		return NyseClassification{Passive, Retail}
	case "9":
		return NyseClassification{Active, Retail}
	default:
		if _, loaded := unknownFlagWarned.LoadOrStore("nyse:"+flag, struct{}{}); !loaded && logger != nil {
			logger.Warn("nyse fee table: unknown liquidity flag, defaulting to ACTIVE/DEFAULT", "flag", flag)
		}
		return NyseClassification{Active, Default}
	}
}

// IsPeggedHidden reports whether an order's type/tags mark it as a hidden
// (pegged, non-displayed) order for NYSE's HIDDEN category promotion.
func IsPeggedHidden(fields domain.OrderFields) bool {
	if fields.Type == domain.PEGGED {
		return true
	}
	_, hidden := fields.Tags["hidden"]
	return hidden
}
