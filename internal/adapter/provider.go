package adapter

import (
	"fmt"
	"sync"
)

// DataProvider defines the interface for RPC endpoint providers
type DataProvider interface {
	// GetPrimaryURL returns the primary RPC endpoint URL
	GetPrimaryURL() (string, error)

	// GetCurrentURL returns the currently active RPC endpoint URL
	GetCurrentURL() (string, error)

	// Failover switches to the secondary endpoint.
	// Returns an error if no secondary endpoint is configured.
	Failover() error

	// Reset resets the provider to use the primary endpoint
	Reset()
}

// RPCProvider implements DataProvider with a primary and optional secondary URL
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &RPCProvider{
		primaryURL:   primaryURL,
		secondaryURL: secondaryURL,
		currentURL:   primaryURL,
	}, nil
}

// GetPrimaryURL returns the primary RPC endpoint URL
func (p *RPCProvider) GetPrimaryURL() (string, error) {
	return p.primaryURL, nil
}

// GetCurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) GetCurrentURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL, nil
}

// Failover switches to the secondary endpoint
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secondaryURL == "" {
		return fmt.Errorf("no secondary RPC endpoint configured")
	}
	if p.currentURL == p.secondaryURL {
		return fmt.Errorf("already failed over to secondary endpoint")
	}

	p.currentURL = p.secondaryURL
	return nil
}

// Reset resets the provider to use the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentURL = p.primaryURL
}
