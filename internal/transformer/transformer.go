// Package transformer applies column rules to a table in place.
package transformer

import (
	"taxietl/internal/table"
	"taxietl/internal/transformer/builtin"
)

// Transformer mutates a table in place.
type Transformer interface {
	Apply(t *table.Table) error
}

// Func adapts a function to Transformer.
type Func func(t *table.Table) error

func (f Func) Apply(t *table.Table) error { return f(t) }

// Chain applies transformers in order and stops at the first error.
type Chain []Transformer

func (c Chain) Apply(t *table.Table) error {
	for _, tr := range c {
		if err := tr.Apply(t); err != nil {
			return err
		}
	}
	return nil
}

// Column names the rules know about. Green files use the lpep_ prefix,
// yellow files tpep_.
const (
	PassengerCount = "passenger_count"

	LpepPickup  = "lpep_pickup_datetime"
	LpepDropoff = "lpep_dropoff_datetime"
	TpepPickup  = "tpep_pickup_datetime"
	TpepDropoff = "tpep_dropoff_datetime"
)

// TimestampColumns are parsed as timestamps when present.
var TimestampColumns = []string{LpepPickup, LpepDropoff, TpepPickup, TpepDropoff}

// WebRules normalizes a freshly fetched table before it is written locally.
func WebRules() Chain {
	return Chain{
		builtin.ParseTimestamps{Columns: TimestampColumns},
		builtin.FillNull{Column: PassengerCount},
	}
}

// WarehouseRules prepares a downloaded table for the warehouse. Timestamps
// were already parsed on the way in.
func WarehouseRules() Chain {
	return Chain{
		builtin.FillNull{Column: PassengerCount},
	}
}
