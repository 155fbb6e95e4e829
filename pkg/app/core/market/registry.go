package market

import (
	"fmt"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/table"
)

// Registry holds every registered asset and the collateral state of
// stablecoins
type Registry struct {
	assets      *table.Table[AssetObject]
	stablecoins *table.Table[StablecoinData]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		assets: table.New("asset", func(a, b AssetObject) bool {
			return a.Symbol < b.Symbol
		}),
		stablecoins: table.New("stablecoin", func(a, b StablecoinData) bool {
			return a.Symbol < b.Symbol
		}),
	}
}

// Copy returns a copy-on-write snapshot
func (r *Registry) Copy() *Registry {
	return &Registry{
		assets:      r.assets.Copy(),
		stablecoins: r.stablecoins.Copy(),
	}
}

// Register adds a new asset
// Returns error if an asset with the same symbol already exists
func (r *Registry) Register(a AssetObject) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := r.assets.Insert(a); err != nil {
		return fmt.Errorf("asset %s already registered", a.Symbol)
	}
	return nil
}

// RegisterStablecoin adds a stablecoin's collateral state;
// the asset itself must be registered with type Stablecoin
func (r *Registry) RegisterStablecoin(s StablecoinData) error {
	a, ok := r.Get(s.Symbol)
	if !ok {
		return fmt.Errorf("asset %s not found", s.Symbol)
	}
	if a.Type != Stablecoin {
		return fmt.Errorf("asset %s is %s, not a stablecoin", s.Symbol, a.Type)
	}
	if _, ok := r.Get(s.BackingSymbol); !ok {
		return fmt.Errorf("backing asset %s not found", s.BackingSymbol)
	}
	return r.stablecoins.Insert(s)
}

// Get retrieves an asset by symbol
func (r *Registry) Get(symbol asset.Symbol) (AssetObject, bool) {
	return r.assets.Get(AssetObject{Symbol: symbol})
}

// Exists checks if an asset is registered
func (r *Registry) Exists(symbol asset.Symbol) bool {
	_, ok := r.Get(symbol)
	return ok
}

// Update replaces an asset's parameters
func (r *Registry) Update(a AssetObject) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return r.assets.Update(a)
}

// List returns all registered assets ordered by symbol
func (r *Registry) List() []AssetObject {
	return r.assets.Items()
}

// Count returns the total number of registered assets
func (r *Registry) Count() int {
	return r.assets.Len()
}

// Stablecoin retrieves a stablecoin's collateral state
func (r *Registry) Stablecoin(symbol asset.Symbol) (StablecoinData, bool) {
	return r.stablecoins.Get(StablecoinData{Symbol: symbol})
}

// IsStablecoin reports whether symbol is a registered stablecoin
func (r *Registry) IsStablecoin(symbol asset.Symbol) bool {
	_, ok := r.Stablecoin(symbol)
	return ok
}

// Stablecoins returns every stablecoin ordered by symbol
func (r *Registry) Stablecoins() []StablecoinData {
	return r.stablecoins.Items()
}

// UpdateStablecoin stores a stablecoin's new collateral state
// Status changes are validated against the settlement state machine
func (r *Registry) UpdateStablecoin(s StablecoinData) error {
	cur, ok := r.Stablecoin(s.Symbol)
	if !ok {
		return fmt.Errorf("stablecoin %s not found", s.Symbol)
	}
	if cur.Status != s.Status {
		if err := validateStatusTransition(cur.Status, s.Status, s); err != nil {
			return fmt.Errorf("stablecoin %s: %w", s.Symbol, err)
		}
	}
	return r.stablecoins.Update(s)
}

// validateStatusTransition checks if status change is valid
func validateStatusTransition(from, to StablecoinStatus, next StablecoinData) error {
	// Normal → Settled: global settlement, needs a settlement price
	// Settled → Normal: revival, the fund must be fully distributed
	switch {
	case from == Normal && to == Settled:
		if next.SettlementPrice.IsNull() {
			return fmt.Errorf("cannot settle without a settlement price")
		}
	case from == Settled && to == Normal:
		if next.SettlementFund != 0 {
			return fmt.Errorf("cannot revive with %d left in the settlement fund", next.SettlementFund)
		}
	default:
		return fmt.Errorf("invalid status transition %s → %s", from, to)
	}
	return nil
}

// RegistryDump is the registry's tables in symbol order
type RegistryDump struct {
	Assets      []AssetObject    `json:"assets"`
	Stablecoins []StablecoinData `json:"stablecoins"`
}

// Dump exports the registry
func (r *Registry) Dump() RegistryDump {
	return RegistryDump{Assets: r.assets.Items(), Stablecoins: r.stablecoins.Items()}
}

// LoadRegistry rebuilds a registry from a dump
func LoadRegistry(d RegistryDump) (*Registry, error) {
	r := NewRegistry()
	if err := r.assets.Load(d.Assets); err != nil {
		return nil, err
	}
	if err := r.stablecoins.Load(d.Stablecoins); err != nil {
		return nil, err
	}
	return r, nil
}
