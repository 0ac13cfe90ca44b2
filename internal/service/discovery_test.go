package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// Mock collaborators for testing

type mockRegistry struct {
	tokens    map[string]*models.TokenMetadata
	upserts   []*models.TokenMetadata
	getErr    error
	upsertErr error
}

func newMockRegistry(tokens ...*models.TokenMetadata) *mockRegistry {
	m := &mockRegistry{tokens: make(map[string]*models.TokenMetadata)}
	for _, t := range tokens {
		m.tokens[registryKey(t.Chain, t.ContractAddress)] = t
	}
	return m
}

func registryKey(chain types.ChainID, address string) string {
	return string(chain) + ":" + strings.ToLower(address)
}

func (m *mockRegistry) GetToken(ctx context.Context, chain types.ChainID, address string) (*models.TokenMetadata, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.tokens[registryKey(chain, address)], nil
}

func (m *mockRegistry) UpsertToken(ctx context.Context, token *models.TokenMetadata) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.tokens[registryKey(token.Chain, token.ContractAddress)] = token
	m.upserts = append(m.upserts, token)
	return nil
}

type mockTransferSource struct {
	events []types.TransferEvent
	err    error
}

func (m *mockTransferSource) FetchTokenTransfers(ctx context.Context, wallet string, chain types.ChainID, limit int) ([]types.TransferEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.events) {
		return m.events[:limit], nil
	}
	return m.events, nil
}

type mockMetadataReader struct {
	symbol      string
	name        string
	decimals    int
	symbolErr   error
	nameErr     error
	decimalsErr error
}

func (m *mockMetadataReader) TokenSymbol(ctx context.Context, contract string) (string, error) {
	return m.symbol, m.symbolErr
}

func (m *mockMetadataReader) TokenName(ctx context.Context, contract string) (string, error) {
	return m.name, m.nameErr
}

func (m *mockMetadataReader) TokenDecimals(ctx context.Context, contract string) (int, error) {
	return m.decimals, m.decimalsErr
}

type mockPriceResolver struct {
	ids map[string]string
	err error
}

func (m *mockPriceResolver) LookupPriceID(ctx context.Context, symbol string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	id, ok := m.ids[symbol]
	if !ok {
		return "", fmt.Errorf("no pricing identifier for symbol %s", symbol)
	}
	return id, nil
}

func transferEvent(contract string, ts int64) types.TransferEvent {
	return types.TransferEvent{
		Chain:           types.ChainEthereum,
		ContractAddress: contract,
		Timestamp:       ts,
		TxHash:          fmt.Sprintf("0xhash%d", ts),
	}
}

func newTestDiscovery(registry *mockRegistry, transfers *mockTransferSource, reader *mockMetadataReader, pricing *mockPriceResolver) *DiscoveryService {
	readers := map[types.ChainID]MetadataReader{}
	if reader != nil {
		readers[types.ChainEthereum] = reader
	}
	return NewDiscoveryService(registry, transfers, readers, pricing, 100)
}

func TestDiscovery_ExcludesRegisteredTokens(t *testing.T) {
	// 3 events for a registered contract, 1 for an unregistered one:
	// discovery returns only the unregistered one
	registry := newMockRegistry(&models.TokenMetadata{
		Chain:           types.ChainEthereum,
		ContractAddress: "0xabc",
		Symbol:          "ABC",
	})
	transfers := &mockTransferSource{events: []types.TransferEvent{
		transferEvent("0xABC", 100),
		transferEvent("0xabc", 200),
		transferEvent("0xAbC", 300),
		transferEvent("0xDEF", 400),
	}}

	s := newTestDiscovery(registry, transfers, nil, nil)

	discovered, err := s.DiscoverTokens(context.Background(), "0xwallet", types.ChainEthereum)
	if err != nil {
		t.Fatalf("DiscoverTokens() error = %v", err)
	}
	if len(discovered) != 1 {
		t.Fatalf("got %d discovered tokens, want 1", len(discovered))
	}
	if discovered[0].ContractAddress != "0xdef" {
		t.Errorf("ContractAddress = %q, want %q", discovered[0].ContractAddress, "0xdef")
	}
}

func TestDiscovery_AggregatesTransferEvents(t *testing.T) {
	transfers := &mockTransferSource{events: []types.TransferEvent{
		transferEvent("0xDEF", 300),
		transferEvent("0xdef", 100),
		transferEvent("0xDeF", 200),
	}}

	s := newTestDiscovery(newMockRegistry(), transfers, nil, nil)

	discovered, err := s.DiscoverTokens(context.Background(), "0xwallet", types.ChainEthereum)
	if err != nil {
		t.Fatalf("DiscoverTokens() error = %v", err)
	}
	if len(discovered) != 1 {
		t.Fatalf("got %d discovered tokens, want 1", len(discovered))
	}

	token := discovered[0]
	if token.TransferCount != 3 {
		t.Errorf("TransferCount = %d, want 3", token.TransferCount)
	}
	if token.FirstSeen.Unix() != 100 {
		t.Errorf("FirstSeen = %v, want unix 100", token.FirstSeen.Unix())
	}
	if token.LastSeen.Unix() != 300 {
		t.Errorf("LastSeen = %v, want unix 300", token.LastSeen.Unix())
	}
}

func TestDiscovery_ScanDepthBoundsHistory(t *testing.T) {
	var events []types.TransferEvent
	for i := 0; i < 50; i++ {
		events = append(events, transferEvent(fmt.Sprintf("0x%040d", i), int64(i)))
	}
	transfers := &mockTransferSource{events: events}

	s := NewDiscoveryService(newMockRegistry(), transfers, nil, nil, 10)

	discovered, err := s.DiscoverTokens(context.Background(), "0xwallet", types.ChainEthereum)
	if err != nil {
		t.Fatalf("DiscoverTokens() error = %v", err)
	}
	if len(discovered) != 10 {
		t.Errorf("got %d discovered tokens, want 10 (bounded by scan depth)", len(discovered))
	}
}

func TestDiscovery_ResolveToken_CleanLookup(t *testing.T) {
	registry := newMockRegistry()
	reader := &mockMetadataReader{symbol: "LINK", name: "Chainlink Token", decimals: 18}
	pricing := &mockPriceResolver{ids: map[string]string{"LINK": "chainlink"}}

	s := newTestDiscovery(registry, nil, reader, pricing)

	resolution, err := s.ResolveToken(context.Background(), types.ChainEthereum, "0xDEF")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}

	if resolution.OnChainStatus != types.ResolutionResolved {
		t.Errorf("OnChainStatus = %v, want %v", resolution.OnChainStatus, types.ResolutionResolved)
	}
	if resolution.PriceIDStatus != types.ResolutionResolved {
		t.Errorf("PriceIDStatus = %v, want %v", resolution.PriceIDStatus, types.ResolutionResolved)
	}

	meta := resolution.Metadata
	if meta.Symbol != "LINK" || meta.Name != "Chainlink Token" || meta.Decimals != 18 {
		t.Errorf("metadata = %+v, want LINK/Chainlink Token/18", meta)
	}
	if meta.PriceID != "chainlink" || !meta.Verified {
		t.Errorf("PriceID = %q Verified = %v, want chainlink/true", meta.PriceID, meta.Verified)
	}
	if meta.ContractAddress != "0xdef" {
		t.Errorf("ContractAddress = %q, want lowercased", meta.ContractAddress)
	}
	if len(registry.upserts) != 1 {
		t.Errorf("got %d upserts, want 1", len(registry.upserts))
	}
}

func TestDiscovery_ResolveToken_IndependentFieldFailures(t *testing.T) {
	registry := newMockRegistry()
	// Symbol read fails, name and decimals succeed: only symbol defaults
	reader := &mockMetadataReader{
		symbolErr: fmt.Errorf("execution reverted"),
		name:      "Odd Token",
		decimals:  6,
	}

	s := newTestDiscovery(registry, nil, reader, &mockPriceResolver{})

	resolution, err := s.ResolveToken(context.Background(), types.ChainEthereum, "0xDEF")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}

	if resolution.OnChainStatus != types.ResolutionDefaulted {
		t.Errorf("OnChainStatus = %v, want %v", resolution.OnChainStatus, types.ResolutionDefaulted)
	}
	if resolution.DefaultedField != "symbol" {
		t.Errorf("DefaultedField = %q, want %q", resolution.DefaultedField, "symbol")
	}

	meta := resolution.Metadata
	if meta.Symbol != models.DefaultTokenSymbol {
		t.Errorf("Symbol = %q, want default %q", meta.Symbol, models.DefaultTokenSymbol)
	}
	if meta.Name != "Odd Token" || meta.Decimals != 6 {
		t.Errorf("successful reads must not be discarded: got %q/%d", meta.Name, meta.Decimals)
	}
	if meta.Verified {
		t.Error("token with defaulted symbol must stay unverified")
	}
}

func TestDiscovery_ResolveToken_AllReadsFail(t *testing.T) {
	registry := newMockRegistry()
	readErr := fmt.Errorf("contract not readable")
	reader := &mockMetadataReader{symbolErr: readErr, nameErr: readErr, decimalsErr: readErr}

	s := newTestDiscovery(registry, nil, reader, &mockPriceResolver{})

	resolution, err := s.ResolveToken(context.Background(), types.ChainEthereum, "0xDEF")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}

	meta := resolution.Metadata
	if meta.Symbol != models.DefaultTokenSymbol || meta.Name != models.DefaultTokenName || meta.Decimals != models.DefaultTokenDecimals {
		t.Errorf("metadata = %+v, want all documented defaults", meta)
	}

	// Persisted unconditionally so the next cycle does not re-query
	if len(registry.upserts) != 1 {
		t.Errorf("got %d upserts, want 1 even for a fully defaulted token", len(registry.upserts))
	}
}

func TestDiscovery_ResolveToken_PriceLookupFailureLeavesUnverified(t *testing.T) {
	registry := newMockRegistry()
	reader := &mockMetadataReader{symbol: "OBSCURE", name: "Obscure Token", decimals: 18}
	pricing := &mockPriceResolver{err: fmt.Errorf("search unavailable")}

	s := newTestDiscovery(registry, nil, reader, pricing)

	resolution, err := s.ResolveToken(context.Background(), types.ChainEthereum, "0xDEF")
	if err != nil {
		t.Fatalf("ResolveToken() error = %v", err)
	}

	if resolution.OnChainStatus != types.ResolutionResolved {
		t.Errorf("OnChainStatus = %v, want resolved", resolution.OnChainStatus)
	}
	if resolution.PriceIDStatus != types.ResolutionFailed {
		t.Errorf("PriceIDStatus = %v, want failed", resolution.PriceIDStatus)
	}
	if resolution.Metadata.Verified || resolution.Metadata.PriceID != "" {
		t.Errorf("token must stay unverified with no pricing identifier, got %+v", resolution.Metadata)
	}
}

func TestClassifyToken(t *testing.T) {
	tests := []struct {
		symbol string
		name   string
		want   types.TokenClass
	}{
		{"USDC", "USD Coin", types.TokenStablecoin},
		{"DAI", "Dai Stablecoin", types.TokenStablecoin},
		{"WETH", "Wrapped Ether", types.TokenWrapped},
		{"UNI-V2", "Uniswap V2 Pair", types.TokenLiquidityPool},
		{"STETH", "Lido Staked Ether", types.TokenStaking},
		{"XGOV", "Protocol Governance", types.TokenGovernance},
		{"LINK", "Chainlink Token", types.TokenUtility},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			if got := classifyToken(tt.symbol, tt.name); got != tt.want {
				t.Errorf("classifyToken(%q, %q) = %v, want %v", tt.symbol, tt.name, got, tt.want)
			}
		})
	}
}
