package service

import (
	"sort"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// Differ compares two snapshots and classifies every difference into typed
// changes. It operates purely on symbol-keyed maps, so reordering of
// categories or accounts between snapshots never produces spurious changes.
type Differ struct {
	percentThreshold  float64
	absoluteThreshold float64
}

// NewDiffer creates a differ with explicit significance thresholds
func NewDiffer(percentThreshold, absoluteThreshold float64) *Differ {
	return &Differ{
		percentThreshold:  percentThreshold,
		absoluteThreshold: absoluteThreshold,
	}
}

// Diff returns the ordered list of typed changes between the previous and new
// snapshot. A nil previous snapshot is a first run: every position opens.
// A single symbol may emit both a value change and a quantity change; they
// are independent facts.
func (d *Differ) Diff(previous, current *models.Snapshot) []*models.Change {
	oldMap := previous.Flatten()
	newMap := current.Flatten()

	keys := make([]string, 0, len(oldMap)+len(newMap))
	for key := range newMap {
		keys = append(keys, key)
	}
	for key := range oldMap {
		if _, ok := newMap[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var changes []*models.Change
	for _, key := range keys {
		oldPos, inOld := oldMap[key]
		newPos, inNew := newMap[key]

		switch {
		case inNew && !inOld:
			changes = append(changes, &models.Change{
				Type:        types.ChangeOpened,
				Symbol:      key,
				Name:        newPos.Name,
				NewValue:    newPos.MarketValue,
				NewQuantity: newPos.Quantity,
				Significant: true,
			})

		case inOld && !inNew:
			changes = append(changes, &models.Change{
				Type:        types.ChangeClosed,
				Symbol:      key,
				Name:        oldPos.Name,
				OldValue:    oldPos.MarketValue,
				OldQuantity: oldPos.Quantity,
				Significant: true,
			})

		default:
			if oldPos.MarketValue != newPos.MarketValue {
				changes = append(changes, d.valueChange(key, oldPos, newPos))
			}
			// Any quantity delta signals an inferred transaction, which is
			// audit-worthy regardless of magnitude
			if oldPos.Quantity != newPos.Quantity {
				changes = append(changes, &models.Change{
					Type:        types.ChangeQuantity,
					Symbol:      key,
					Name:        newPos.Name,
					OldValue:    oldPos.MarketValue,
					NewValue:    newPos.MarketValue,
					OldQuantity: oldPos.Quantity,
					NewQuantity: newPos.Quantity,
					Significant: true,
				})
			}
		}
	}

	return changes
}

// valueChange builds a value change with its significance verdict. The percent
// delta is only defined when the old value is positive; the absolute-delta
// test applies either way.
func (d *Differ) valueChange(key string, oldPos, newPos *models.Position) *models.Change {
	change := &models.Change{
		Type:        types.ChangeValue,
		Symbol:      key,
		Name:        newPos.Name,
		OldValue:    oldPos.MarketValue,
		NewValue:    newPos.MarketValue,
		OldQuantity: oldPos.Quantity,
		NewQuantity: newPos.Quantity,
	}

	absoluteDelta := change.ValueDelta()
	if absoluteDelta < 0 {
		absoluteDelta = -absoluteDelta
	}
	change.Significant = absoluteDelta >= d.absoluteThreshold

	if oldPos.MarketValue > 0 {
		percent := (newPos.MarketValue - oldPos.MarketValue) / oldPos.MarketValue * 100
		change.PercentChange = &percent

		absPercent := percent
		if absPercent < 0 {
			absPercent = -absPercent
		}
		if absPercent >= d.percentThreshold {
			change.Significant = true
		}
	}

	return change
}

// Significant filters a change list down to the audit-worthy entries
func Significant(changes []*models.Change) []*models.Change {
	var out []*models.Change
	for _, c := range changes {
		if c.Significant {
			out = append(out, c)
		}
	}
	return out
}
