package models

import "github.com/portfolio-reconciler/internal/types"

// Change represents one typed difference between two snapshots. A single
// symbol may emit both a value change and a quantity change in the same
// cycle; they are independent facts.
type Change struct {
	Type          types.ChangeType `json:"type"`
	Symbol        string           `json:"symbol"`
	Name          string           `json:"name,omitempty"`
	OldValue      float64          `json:"oldValue"`
	NewValue      float64          `json:"newValue"`
	OldQuantity   float64          `json:"oldQuantity"`
	NewQuantity   float64          `json:"newQuantity"`
	PercentChange *float64         `json:"percentChange,omitempty"` // unset when the old value is zero
	Significant   bool             `json:"significant"`
}

// ValueDelta returns the signed absolute market value delta
func (c *Change) ValueDelta() float64 {
	return c.NewValue - c.OldValue
}

// QuantityDelta returns the signed quantity delta
func (c *Change) QuantityDelta() float64 {
	return c.NewQuantity - c.OldQuantity
}
