package source

import (
	"fmt"
	"strings"
	"time"
)

// FactoryConfig carries provider credentials and endpoints.
type FactoryConfig struct {
	FREDAPIKey       string
	FREDBaseURL      string
	ShillerURL       string
	ShillerSheet     string
	ShillerObjectKey string
	Objects          ObjectFetcher
	FetchTimeout     time.Duration
}

// Factory resolves a Fetcher from an indicator's free-text source column.
// Fetchers are built once and shared, so HTTP clients and their connection
// pools are reused across indicators.
type Factory struct {
	fred      Fetcher
	shiller   Fetcher
	synthetic Fetcher
}

// NewFactory creates a provider factory.
// Parameters:
//   - cfg: provider credentials and endpoints.
// Returns:
//   - *Factory: factory instance.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	f := &Factory{synthetic: NewSyntheticFetcher()}
	if cfg.FREDAPIKey != "" {
		f.fred = NewFREDFetcher(cfg.FREDAPIKey, cfg.FREDBaseURL, cfg.FetchTimeout)
	} else {
		// No credential configured: development mode, generate data instead
		f.fred = f.synthetic
	}
	f.shiller = NewShillerFetcher(cfg.ShillerURL, cfg.ShillerSheet, cfg.Objects, cfg.ShillerObjectKey, cfg.FetchTimeout)
	return f
}

// ForSource resolves the fetcher for a source name. Matching is
// substring-based because the source column is free text ("FRED", "FRED /
// Atlanta Fed", "Shiller/multpl").
// Parameters:
//   - name: source column value.
// Returns:
//   - Fetcher: resolved provider.
//   - error: ErrSourceRetired for turned-down providers, ErrUnsupportedSource
//     for unknown ones.
func (f *Factory) ForSource(name string) (Fetcher, error) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "polygon"):
		return nil, ErrSourceRetired
	case strings.Contains(n, "fred"):
		return f.fred, nil
	case strings.Contains(n, "shiller"), strings.Contains(n, "multpl"):
		return f.shiller, nil
	case strings.Contains(n, "mock"), strings.Contains(n, "synthetic"):
		return f.synthetic, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, name)
	}
}
