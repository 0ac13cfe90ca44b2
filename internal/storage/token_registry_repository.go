package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// TokenRegistryRepository handles token registry data access. The registry is
// keyed by (chain, lowercased contract address); rows are created on first
// discovery and never deleted. Verification is upgrade only: a verified row
// never regresses to defaulted metadata, and a non-empty pricing identifier is
// never overwritten with an empty one.
type TokenRegistryRepository struct {
	db *PostgresDB
}

// NewTokenRegistryRepository creates a new token registry repository
func NewTokenRegistryRepository(db *PostgresDB) *TokenRegistryRepository {
	return &TokenRegistryRepository{db: db}
}

// GetToken retrieves a token by chain and contract address.
// Returns nil when the token is not registered.
func (r *TokenRegistryRepository) GetToken(ctx context.Context, chain types.ChainID, contractAddress string) (*models.TokenMetadata, error) {
	query := `
		SELECT id, chain, contract_address, symbol, name, decimals, class,
		       price_id, verified, discovered_at
		FROM tokens
		WHERE chain = $1 AND contract_address = lower($2)
	`

	var t models.TokenMetadata
	err := r.db.Pool().QueryRow(ctx, query, string(chain), contractAddress).Scan(
		&t.ID, &t.Chain, &t.ContractAddress, &t.Symbol, &t.Name, &t.Decimals,
		&t.Class, &t.PriceID, &t.Verified, &t.DiscoveredAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &t, nil
}

// ListTokensByChain retrieves all registered tokens for a chain
func (r *TokenRegistryRepository) ListTokensByChain(ctx context.Context, chain types.ChainID) ([]models.TokenMetadata, error) {
	query := `
		SELECT id, chain, contract_address, symbol, name, decimals, class,
		       price_id, verified, discovered_at
		FROM tokens
		WHERE chain = $1
		ORDER BY symbol, contract_address
	`

	rows, err := r.db.Pool().Query(ctx, query, string(chain))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListTokens retrieves every registered token across all chains
func (r *TokenRegistryRepository) ListTokens(ctx context.Context) ([]models.TokenMetadata, error) {
	query := `
		SELECT id, chain, contract_address, symbol, name, decimals, class,
		       price_id, verified, discovered_at
		FROM tokens
		ORDER BY chain, symbol, contract_address
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// UpsertToken creates or upgrades a token row. For an existing row, defaulted
// fields only replace defaulted fields: once verified=true the stored
// symbol/name/decimals stick, and price_id is kept unless the new row carries
// a non-empty one.
func (r *TokenRegistryRepository) UpsertToken(ctx context.Context, t *models.TokenMetadata) error {
	query := `
		INSERT INTO tokens (chain, contract_address, symbol, name, decimals, class,
		                    price_id, verified)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chain, contract_address) DO UPDATE SET
			symbol   = CASE WHEN tokens.verified AND NOT EXCLUDED.verified THEN tokens.symbol   ELSE EXCLUDED.symbol   END,
			name     = CASE WHEN tokens.verified AND NOT EXCLUDED.verified THEN tokens.name     ELSE EXCLUDED.name     END,
			decimals = CASE WHEN tokens.verified AND NOT EXCLUDED.verified THEN tokens.decimals ELSE EXCLUDED.decimals END,
			class    = EXCLUDED.class,
			price_id = CASE WHEN EXCLUDED.price_id <> '' THEN EXCLUDED.price_id ELSE tokens.price_id END,
			verified = tokens.verified OR EXCLUDED.verified
		RETURNING id, discovered_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		string(t.Chain), t.ContractAddress, t.Symbol, t.Name, t.Decimals,
		string(t.Class), t.PriceID, t.Verified,
	).Scan(&t.ID, &t.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}

	t.ContractAddress = strings.ToLower(t.ContractAddress)
	return nil
}

// CountTokens returns the total number of registered tokens
func (r *TokenRegistryRepository) CountTokens(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx, `SELECT count(*) FROM tokens`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

// scanTokens collects token rows; caller owns rows lifecycle
func scanTokens(rows pgx.Rows) ([]models.TokenMetadata, error) {
	var tokens []models.TokenMetadata
	for rows.Next() {
		var t models.TokenMetadata
		if err := rows.Scan(
			&t.ID, &t.Chain, &t.ContractAddress, &t.Symbol, &t.Name, &t.Decimals,
			&t.Class, &t.PriceID, &t.Verified, &t.DiscoveredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}
