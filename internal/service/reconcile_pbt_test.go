package service

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/portfolio-reconciler/internal/config"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// lot is one generated raw holding for the merge properties
type lot struct {
	Qty   float64
	Value float64
}

func TestNormalizerMergeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genLots := gen.SliceOfN(5, gen.Struct(reflect.TypeOf(lot{}), map[string]gopter.Gen{
		"Qty":   gen.Float64Range(0.1, 1000),
		"Value": gen.Float64Range(0.01, 1e6),
	}))

	// Merging N lots of one symbol yields exactly the summed value and the
	// recomputed price ratio, never an average of lot prices
	properties.Property("merge preserves summed value and ratio price", prop.ForAll(
		func(lots []lot) bool {
			var instruments []models.RawInstrument
			var wantQty, wantValue float64
			seen := make(map[string]bool)

			for _, l := range lots {
				row := models.RawInstrument{
					AccountID:   "acc-1",
					Symbol:      "SYM",
					Quantity:    l.Qty,
					UnitPrice:   l.Value / l.Qty,
					MarketValue: l.Value,
				}
				instruments = append(instruments, row)

				// Exact duplicates are dropped by design, mirror that here
				key := fmt.Sprintf("%v|%v", l.Qty, l.Value)
				if !seen[key] {
					seen[key] = true
					wantQty += l.Qty
					wantValue += l.Value
				}
			}

			snapshot := newTestNormalizer().BuildSnapshot(singleAccount(), instruments, nil)
			p := snapshot.Flatten()["SYM"]
			if p == nil {
				return len(instruments) == 0
			}
			return p.Quantity == wantQty &&
				p.MarketValue == wantValue &&
				p.UnitPrice == wantValue/wantQty
		},
		genLots,
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(lots []lot) bool {
			var instruments []models.RawInstrument
			for i, l := range lots {
				instruments = append(instruments, models.RawInstrument{
					AccountID:   "acc-1",
					Symbol:      fmt.Sprintf("SYM%d", i%3),
					Quantity:    l.Qty,
					MarketValue: l.Value,
				})
			}

			n := NewNormalizer(config.DefaultCategoryPatterns(), 1.0, "USD")
			first := n.BuildSnapshot(singleAccount(), instruments, nil)
			second := n.BuildSnapshot(singleAccount(), instruments, nil)

			return first.PositionCount() == second.PositionCount() &&
				first.TotalValue == second.TotalValue
		},
		genLots,
	))

	properties.TestingRun(t)
}

func TestDifferProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genSymbols := gen.SliceOf(gen.OneConstOf("AAPL", "MSFT", "VTI", "ETH", "LINK", "BND"))

	// Opened and closed changes partition the symmetric difference of the
	// two symbol sets, and no symbol emits both
	properties.Property("diff completeness over symbol sets", prop.ForAll(
		func(oldSymbols, newSymbols []string) bool {
			old := snapshotFromSymbols(oldSymbols)
			current := snapshotFromSymbols(newSymbols)

			changes := NewDiffer(5.0, 500.0).Diff(old, current)

			opened := make(map[string]int)
			closed := make(map[string]int)
			for _, c := range changes {
				switch c.Type {
				case types.ChangeOpened:
					opened[c.Symbol]++
				case types.ChangeClosed:
					closed[c.Symbol]++
				}
			}

			oldSet := toSet(oldSymbols)
			newSet := toSet(newSymbols)
			for symbol := range newSet {
				want := 0
				if !oldSet[symbol] {
					want = 1
				}
				if opened[symbol] != want {
					return false
				}
			}
			for symbol := range oldSet {
				want := 0
				if !newSet[symbol] {
					want = 1
				}
				if closed[symbol] != want {
					return false
				}
			}
			for symbol := range opened {
				if closed[symbol] > 0 {
					return false
				}
			}
			return true
		},
		genSymbols,
		genSymbols,
	))

	// A value change significant under a threshold stays significant under
	// any lower threshold
	properties.Property("significance is monotone in the percent threshold", prop.ForAll(
		func(oldValue, newValue, tLow, tHigh float64) bool {
			if tLow > tHigh {
				tLow, tHigh = tHigh, tLow
			}
			old := snapshotOf(position("X", 1, oldValue))
			current := snapshotOf(position("X", 1, newValue))

			strict := NewDiffer(tHigh, 1e12).Diff(old, current)
			loose := NewDiffer(tLow, 1e12).Diff(old, current)
			if len(strict) == 0 {
				return true
			}
			return !strict[0].Significant || loose[0].Significant
		},
		gen.Float64Range(1, 1e6),
		gen.Float64Range(1, 1e6),
		gen.Float64Range(0, 50),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t)
}

func snapshotFromSymbols(symbols []string) *models.Snapshot {
	var positions []*models.Position
	seen := make(map[string]bool)
	for _, symbol := range symbols {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		positions = append(positions, position(symbol, 1, 100))
	}
	return snapshotOf(positions...)
}

func toSet(symbols []string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range symbols {
		set[s] = true
	}
	return set
}
