// Package service implements the reconciliation core: normalization and
// deduplication of raw records, snapshot diffing, token discovery, balance
// resolution, ledger writing, and cycle orchestration.
package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/portfolio-reconciler/internal/config"
	"github.com/portfolio-reconciler/internal/errors"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// Normalizer collapses raw banking and blockchain records into one canonical
// Position per unique symbol. It is a pure, synchronous computation over
// already-fetched data.
type Normalizer struct {
	patterns         []config.CategoryPattern
	minPositionValue float64
	currency         string
}

// NewNormalizer creates a normalizer with an explicit classification pattern
// list. Pattern order is significant: specific categories must precede broad
// catch-alls.
func NewNormalizer(patterns []config.CategoryPattern, minPositionValue float64, currency string) *Normalizer {
	if currency == "" {
		currency = "USD"
	}

	return &Normalizer{
		patterns:         patterns,
		minPositionValue: minPositionValue,
		currency:         currency,
	}
}

// BuildSnapshot produces the canonical snapshot for one fetch cycle from raw
// banking records and resolved on-chain balances. Data shape anomalies are
// recorded as warnings on the snapshot, never returned as errors.
func (n *Normalizer) BuildSnapshot(accounts []models.RawAccount, instruments []models.RawInstrument, balances []*models.WalletBalance) *models.Snapshot {
	snapshot := &models.Snapshot{
		Timestamp:  time.Now().UTC(),
		Currency:   n.currency,
		Categories: make(map[types.AssetClass][]*models.Position),
	}

	unique, dropped := dedupeAccounts(accounts)

	positions := n.consolidateInstruments(instruments, dropped, snapshot)
	for _, p := range positions {
		snapshot.Categories[p.AssetClass] = append(snapshot.Categories[p.AssetClass], p)
	}

	cryptoTotal := 0.0
	for _, p := range n.assembleCrypto(balances) {
		snapshot.Categories[types.ClassCrypto] = append(snapshot.Categories[types.ClassCrypto], p)
		cryptoTotal += p.MarketValue
	}

	// Deterministic ordering inside every category
	for _, list := range snapshot.Categories {
		sort.Slice(list, func(i, j int) bool { return list[i].Key() < list[j].Key() })
	}

	// Net worth comes from deduplicated account balances, not instrument
	// valuations, so cash already reflected inside investment valuations is
	// not counted twice. Crypto is an independent additive term.
	for _, account := range unique {
		snapshot.TotalValue += account.Balance
	}
	snapshot.TotalValue += cryptoTotal

	return snapshot
}

// dedupeAccounts collapses accounts reported under multiple identifiers.
// Priority order, first match wins: bank-assigned number, provider-assigned
// key, then display name plus type. Returns the surviving accounts and the
// record identifiers of dropped duplicates.
func dedupeAccounts(accounts []models.RawAccount) ([]models.RawAccount, map[string]bool) {
	seenBank := make(map[string]bool)
	seenProvider := make(map[string]bool)
	seenNameType := make(map[string]bool)
	dropped := make(map[string]bool)

	var unique []models.RawAccount
	for _, account := range accounts {
		nameTypeKey := strings.ToLower(account.Name + "|" + account.Type)

		duplicate := false
		switch {
		case account.BankNumber != "":
			duplicate = seenBank[account.BankNumber]
		case account.ProviderKey != "":
			duplicate = seenProvider[account.ProviderKey]
		default:
			duplicate = seenNameType[nameTypeKey]
		}

		// Track every identifier of the surviving account so later views of
		// the same underlying account match on any of them
		if account.BankNumber != "" {
			seenBank[account.BankNumber] = true
		}
		if account.ProviderKey != "" {
			seenProvider[account.ProviderKey] = true
		}
		seenNameType[nameTypeKey] = true

		if duplicate {
			if account.ID != "" {
				dropped[account.ID] = true
			}
			continue
		}
		unique = append(unique, account)
	}

	return unique, dropped
}

// consolidateInstruments filters, deduplicates, and merges raw instrument rows
// into one Position per symbol
func (n *Normalizer) consolidateInstruments(instruments []models.RawInstrument, droppedAccounts map[string]bool, snapshot *models.Snapshot) []*models.Position {
	seenExact := make(map[string]bool)
	bySymbol := make(map[string]*models.Position)
	var order []string

	for _, row := range instruments {
		if row.AccountID == "" {
			warn := errors.NewDataShapeError("accountId", rowLabel(row))
			snapshot.Warnings = append(snapshot.Warnings, warn.Message)
			continue
		}
		// Rows owned by a dropped duplicate account would double-count value
		if droppedAccounts[row.AccountID] {
			continue
		}
		// A row with neither a symbol nor an instrument identifier has no
		// stable identity across cycles
		if row.Symbol == "" && row.InstrumentID == "" {
			warn := errors.NewDataShapeError("instrumentId", rowLabel(row))
			snapshot.Warnings = append(snapshot.Warnings, warn.Message)
			continue
		}
		// Zero-value holdings are not tracked positions
		if row.MarketValue == 0 {
			continue
		}

		// Providers re-emit the same instrument per settlement leg
		exactKey := fmt.Sprintf("%s|%v|%v|%v", symbolKey(row), row.Quantity, row.MarketValue, row.UnitPrice)
		if seenExact[exactKey] {
			continue
		}
		seenExact[exactKey] = true

		key := symbolKey(row)
		position, ok := bySymbol[key]
		if !ok {
			position = &models.Position{
				Symbol:       row.Symbol,
				Name:         row.Name,
				InstrumentID: row.InstrumentID,
				Currency:     firstNonEmpty(row.Currency, n.currency),
				UpdatedAt:    time.Now().UTC(),
			}
			bySymbol[key] = position
			order = append(order, key)
		}

		position.Quantity += row.Quantity
		position.MarketValue += row.MarketValue
		position.CostBasis += row.CostBasis
		if position.Name == "" {
			position.Name = row.Name
		}
		if position.InstrumentID == "" {
			position.InstrumentID = row.InstrumentID
		}
		position.AccountIDs = joinAccountID(position.AccountIDs, row.AccountID)
	}

	positions := make([]*models.Position, 0, len(order))
	for _, key := range order {
		p := bySymbol[key]

		// Unit price is always the recomputed ratio, never an input row's
		// price or an average of prices
		if p.Quantity != 0 {
			p.UnitPrice = p.MarketValue / p.Quantity
		}
		if p.CostBasis != 0 {
			p.GainLoss = p.MarketValue - p.CostBasis
		}
		p.AssetClass = n.classify(p.Name, p.InstrumentID)

		positions = append(positions, p)
	}

	return positions
}

// assembleCrypto turns resolved wallet balances into crypto positions,
// merging the same symbol across wallets and chains and applying the
// minimum-position-value floor
func (n *Normalizer) assembleCrypto(balances []*models.WalletBalance) []*models.Position {
	bySymbol := make(map[string]*models.Position)
	var order []string

	for _, b := range balances {
		if b == nil || b.Symbol == "" {
			continue
		}

		position, ok := bySymbol[b.Symbol]
		if !ok {
			position = &models.Position{
				Symbol:     b.Symbol,
				Name:       b.Name,
				Currency:   n.currency,
				AssetClass: types.ClassCrypto,
				UpdatedAt:  time.Now().UTC(),
			}
			bySymbol[b.Symbol] = position
			order = append(order, b.Symbol)
		}

		position.Quantity += b.Quantity
		position.MarketValue += b.Value
		position.AccountIDs = joinAccountID(position.AccountIDs, b.Wallet)
	}

	positions := make([]*models.Position, 0, len(order))
	for _, symbol := range order {
		p := bySymbol[symbol]
		if p.MarketValue < n.minPositionValue {
			continue
		}
		if p.Quantity != 0 {
			p.UnitPrice = p.MarketValue / p.Quantity
		}
		positions = append(positions, p)
	}

	return positions
}

// classify assigns an asset class by first-match-wins iteration over the
// ordered pattern list. Default is equity.
func (n *Normalizer) classify(name, instrumentID string) types.AssetClass {
	lowerName := strings.ToLower(name)

	for _, pattern := range n.patterns {
		for _, substr := range pattern.Names {
			if substr != "" && strings.Contains(lowerName, strings.ToLower(substr)) {
				return types.AssetClass(pattern.Category)
			}
		}
		for _, prefix := range pattern.Prefixes {
			if prefix != "" && strings.HasPrefix(instrumentID, prefix) {
				return types.AssetClass(pattern.Category)
			}
		}
	}

	return types.ClassEquity
}

// symbolKey returns the consolidation key for a raw instrument row. The
// instrument identifier stands in when the symbol is absent, so a renamed
// holding keeps its identity across cycles.
func symbolKey(row models.RawInstrument) string {
	if row.Symbol != "" {
		return row.Symbol
	}
	return row.InstrumentID
}

// rowLabel identifies a raw row in warnings
func rowLabel(row models.RawInstrument) string {
	if row.InstrumentID != "" {
		return row.InstrumentID
	}
	if row.Symbol != "" {
		return row.Symbol
	}
	return row.Name
}

// joinAccountID appends an account identifier to a comma-joined list,
// skipping identifiers already present
func joinAccountID(existing, id string) string {
	if id == "" {
		return existing
	}
	if existing == "" {
		return id
	}
	for _, part := range strings.Split(existing, ",") {
		if part == id {
			return existing
		}
	}
	return existing + "," + id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
