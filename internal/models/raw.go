package models

// RawAccount represents one account record as reported by the banking
// aggregation provider. The same underlying account may be reported under
// different identifiers; deduplication happens in the normalizer.
type RawAccount struct {
	ID          string  `json:"id"`          // provider-assigned record identifier
	BankNumber  string  `json:"bankNumber"`  // stable bank-assigned number (e.g. IBAN), may be empty
	ProviderKey string  `json:"providerKey"` // provider-assigned account key, may be empty
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Balance     float64 `json:"balance"`
	Currency    string  `json:"currency"`
}

// RawInstrument represents one instrument row as reported by the banking
// aggregation provider, tagged with its owning account
type RawInstrument struct {
	AccountID    string  `json:"accountId"`
	InstrumentID string  `json:"instrumentId"` // ISIN or provider identifier
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	MarketValue  float64 `json:"marketValue"`
	CostBasis    float64 `json:"costBasis"`
	Currency     string  `json:"currency"`
}
