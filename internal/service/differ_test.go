package service

import (
	"testing"
	"time"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

func snapshotOf(positions ...*models.Position) *models.Snapshot {
	s := &models.Snapshot{
		Timestamp:  time.Now().UTC(),
		Currency:   "USD",
		Categories: make(map[types.AssetClass][]*models.Position),
	}
	for _, p := range positions {
		class := p.AssetClass
		if class == "" {
			class = types.ClassEquity
		}
		s.Categories[class] = append(s.Categories[class], p)
		s.TotalValue += p.MarketValue
	}
	return s
}

func position(symbol string, qty, value float64) *models.Position {
	return &models.Position{Symbol: symbol, Name: symbol, Quantity: qty, MarketValue: value}
}

func changesOfType(changes []*models.Change, t types.ChangeType) []*models.Change {
	var out []*models.Change
	for _, c := range changes {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func TestDiffer_ValueChangeWithPercent(t *testing.T) {
	// Old {AAPL: qty 10, value 1000}, new {AAPL: qty 10, value 1200}, 5%
	// threshold: one significant value change at +20%
	d := NewDiffer(5.0, 500.0)

	old := snapshotOf(position("AAPL", 10, 1000))
	current := snapshotOf(position("AAPL", 10, 1200))

	changes := d.Diff(old, current)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}

	change := changes[0]
	if change.Type != types.ChangeValue {
		t.Errorf("Type = %v, want %v", change.Type, types.ChangeValue)
	}
	if change.PercentChange == nil || *change.PercentChange != 20.0 {
		t.Errorf("PercentChange = %v, want 20.0", change.PercentChange)
	}
	if !change.Significant {
		t.Error("change should be significant at 5% threshold")
	}
}

func TestDiffer_OpenedAlwaysSignificant(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	changes := d.Diff(snapshotOf(), snapshotOf(position("MSFT", 5, 900)))
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].Type != types.ChangeOpened {
		t.Errorf("Type = %v, want %v", changes[0].Type, types.ChangeOpened)
	}
	if !changes[0].Significant {
		t.Error("opened change must always be significant")
	}
}

func TestDiffer_NilPreviousIsFirstRun(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	changes := d.Diff(nil, snapshotOf(position("AAPL", 10, 1000), position("VTI", 8, 800)))

	opened := changesOfType(changes, types.ChangeOpened)
	if len(opened) != 2 {
		t.Errorf("got %d opened changes, want 2 on first run", len(opened))
	}
}

func TestDiffer_Completeness(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	old := snapshotOf(position("AAPL", 10, 1000), position("GONE", 1, 100))
	current := snapshotOf(position("AAPL", 10, 1000), position("NEW", 2, 200))

	changes := d.Diff(old, current)

	opened := changesOfType(changes, types.ChangeOpened)
	closed := changesOfType(changes, types.ChangeClosed)
	if len(opened) != 1 || opened[0].Symbol != "NEW" {
		t.Errorf("opened = %v, want exactly one for NEW", opened)
	}
	if len(closed) != 1 || closed[0].Symbol != "GONE" {
		t.Errorf("closed = %v, want exactly one for GONE", closed)
	}

	// No symbol appears as both opened and closed
	for _, o := range opened {
		for _, c := range closed {
			if o.Symbol == c.Symbol {
				t.Errorf("symbol %s emitted both opened and closed", o.Symbol)
			}
		}
	}
	// Unchanged symbol emits nothing
	if len(changes) != 2 {
		t.Errorf("got %d changes, want 2 (AAPL unchanged)", len(changes))
	}
}

func TestDiffer_QuantityChangeUnconditional(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	// Tiny quantity delta, value unchanged: still reported, it signals a trade
	old := snapshotOf(position("VTI", 100, 10000))
	current := snapshotOf(position("VTI", 100.001, 10000))

	changes := d.Diff(old, current)
	qty := changesOfType(changes, types.ChangeQuantity)
	if len(qty) != 1 {
		t.Fatalf("got %d quantity changes, want 1", len(qty))
	}
	if !qty[0].Significant {
		t.Error("quantity change must be significant regardless of magnitude")
	}
}

func TestDiffer_ValueAndQuantityAreIndependentFacts(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	old := snapshotOf(position("AAPL", 10, 1000))
	current := snapshotOf(position("AAPL", 12, 1300))

	changes := d.Diff(old, current)
	if len(changesOfType(changes, types.ChangeValue)) != 1 {
		t.Error("expected a value change")
	}
	if len(changesOfType(changes, types.ChangeQuantity)) != 1 {
		t.Error("expected a quantity change alongside the value change")
	}
}

func TestDiffer_ZeroOldValueSkipsPercent(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	old := snapshotOf(position("XYZ", 5, 0))
	current := snapshotOf(position("XYZ", 5, 600))

	changes := d.Diff(old, current)
	values := changesOfType(changes, types.ChangeValue)
	if len(values) != 1 {
		t.Fatalf("got %d value changes, want 1", len(values))
	}

	change := values[0]
	if change.PercentChange != nil {
		t.Errorf("PercentChange = %v, want unset when old value is zero", *change.PercentChange)
	}
	// The absolute-delta test still applies: 600 >= 500
	if !change.Significant {
		t.Error("change should be significant via the absolute threshold")
	}
}

func TestDiffer_SignificanceEitherConditionSuffices(t *testing.T) {
	tests := []struct {
		name            string
		oldValue        float64
		newValue        float64
		wantSignificant bool
	}{
		{"percent only", 100, 110, true},       // +10% but delta 10 < 500
		{"absolute only", 100000, 100600, true}, // +0.6% but delta 600 >= 500
		{"neither", 100000, 100100, false},      // +0.1%, delta 100
	}

	d := NewDiffer(5.0, 500.0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := d.Diff(
				snapshotOf(position("X", 1, tt.oldValue)),
				snapshotOf(position("X", 1, tt.newValue)),
			)
			values := changesOfType(changes, types.ChangeValue)
			if len(values) != 1 {
				t.Fatalf("got %d value changes, want 1", len(values))
			}
			if values[0].Significant != tt.wantSignificant {
				t.Errorf("Significant = %v, want %v", values[0].Significant, tt.wantSignificant)
			}
		})
	}
}

func TestDiffer_SignificanceMonotonicity(t *testing.T) {
	old := snapshotOf(position("AAPL", 10, 1000))
	current := snapshotOf(position("AAPL", 10, 1100))

	// Significant at 10%: must remain significant at every lower threshold
	strict := NewDiffer(10.0, 1e9).Diff(old, current)
	if !strict[0].Significant {
		t.Fatal("expected significance at the 10% threshold")
	}

	for _, threshold := range []float64{9, 5, 1, 0} {
		changes := NewDiffer(threshold, 1e9).Diff(old, current)
		if !changes[0].Significant {
			t.Errorf("significance lost at lower threshold %v", threshold)
		}
	}
}

func TestDiffer_CategoryLayoutDoesNotMatter(t *testing.T) {
	d := NewDiffer(5.0, 500.0)

	// Same position, different category between snapshots
	old := &models.Snapshot{Categories: map[types.AssetClass][]*models.Position{
		types.ClassEquity: {position("VNQ", 10, 1000)},
	}}
	current := &models.Snapshot{Categories: map[types.AssetClass][]*models.Position{
		types.ClassRealEstate: {position("VNQ", 10, 1000)},
	}}

	if changes := d.Diff(old, current); len(changes) != 0 {
		t.Errorf("got %d changes, want 0 for a pure category move", len(changes))
	}
}

func TestSignificant_Filters(t *testing.T) {
	changes := []*models.Change{
		{Type: types.ChangeOpened, Symbol: "A", Significant: true},
		{Type: types.ChangeValue, Symbol: "B", Significant: false},
		{Type: types.ChangeQuantity, Symbol: "C", Significant: true},
	}

	got := Significant(changes)
	if len(got) != 2 {
		t.Fatalf("got %d significant changes, want 2", len(got))
	}
	for _, c := range got {
		if !c.Significant {
			t.Errorf("insignificant change %s passed the filter", c.Symbol)
		}
	}
}
