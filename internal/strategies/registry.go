package strategies

import (
	"fmt"
	"sort"
	"sync"

	"cryptoPaperTrader/internal/ports"
)

// Deps carries the collaborators every strategy is constructed with.
// Strategies call the ledger through Executor and fetch their own data
// through Market unless they are snapshot-aware.
type Deps struct {
	Logger   ports.Logger
	Executor ports.TradeExecutor
	Market   ports.MarketDataProvider
	Config   Config
}

// Config holds the tunable indicator parameters shared by the built-in
// strategies.
type Config struct {
	ShortMAPeriod    int
	LongMAPeriod     int
	RSIPeriod        int
	RSIOverbought    float64
	RSIOversold      float64
	MACDFastPeriod   int
	MACDSlowPeriod   int
	MACDSignalPeriod int
}

// Factory constructs a strategy from its dependencies.
type Factory func(deps Deps) (ports.Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a strategy factory under a tagged name. Called from init
// functions of the strategy files; duplicate names panic at startup.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = factory
}

// Build constructs one strategy instance per requested name.
func Build(names []string, deps Deps) ([]ports.Strategy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]ports.Strategy, 0, len(names))
	for _, name := range names {
		factory, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("strategy %q: %w", name, ports.ErrUnknownStrategy)
		}
		strat, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("building strategy %q: %w", name, err)
		}
		out = append(out, strat)
	}
	return out, nil
}

// Names returns the registered strategy tags in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
