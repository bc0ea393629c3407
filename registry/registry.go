// Package registry instantiates escrow instances and tracks the settlement
// currency allow-list. Creating an instance also performs the first
// role-claim: the seller funds their deposit as part of creation.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"tripact/core/events"
	"tripact/crypto"
	"tripact/escrow"
	"tripact/ledger"
)

// Operator is the module address participants approve as a spender so the
// registry can pull deposits into instance vaults.
var Operator = crypto.ModuleAddress("escrow")

var (
	// ErrCurrencyNotAllowed is returned when an instance is requested in a
	// currency outside the allow-list.
	ErrCurrencyNotAllowed = errors.New("registry: currency not allow-listed")
	// ErrInstanceNotFound is returned when no instance exists under the
	// given identifier.
	ErrInstanceNotFound = errors.New("registry: instance not found")
)

// Registry is the instance factory. Instances are never deleted; a completed
// instance remains a permanent historical record.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]*ledger.Token
	instances  map[[32]byte]*escrow.Instance
	order      [][32]byte

	emitter       events.Emitter
	emergencyWait time.Duration
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		currencies: make(map[string]*ledger.Token),
		instances:  make(map[[32]byte]*escrow.Instance),
		emitter:    events.NoopEmitter{},
	}
}

// SetEmitter configures the emitter newly created instances report to.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = emitter
}

// SetEmergencyWait overrides the idle-timeout waiting period applied to
// newly created instances. Non-positive values leave the default in place.
func (r *Registry) SetEmergencyWait(wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emergencyWait = wait
}

// AllowCurrency adds a settlement currency to the allow-list.
func (r *Registry) AllowCurrency(token *ledger.Token) {
	if token == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currencies[token.Symbol()] = token
}

// Currency returns the allow-listed token for the given symbol.
func (r *Registry) Currency(symbol string) (*ledger.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.currencies[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// Currencies returns the allow-listed currency symbols.
func (r *Registry) Currencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := make([]string, 0, len(r.currencies))
	for symbol := range r.currencies {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Create instantiates a new escrow instance with the given terms and funds
// the seller's deposit as the first role-claim. The identifier is derived
// from the seller, the currency and a fresh nonce, and in turn determines
// the custody vault address.
func (r *Registry) Create(symbol string, params escrow.Params, seller escrow.Principal) (*escrow.Instance, error) {
	token, ok := r.Currency(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotAllowed, symbol)
	}
	nonce := uuid.New()
	id := ethcrypto.Keccak256Hash(seller.Address[:], []byte(token.Symbol()), nonce[:])
	custody := ledger.NewCustody(token, Operator, crypto.DeriveVaultAddress(id))
	inst, err := escrow.New(id, params, custody)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	inst.SetEmitter(r.emitter)
	if r.emergencyWait > 0 {
		inst.SetEmergencyWait(r.emergencyWait)
	}
	r.mu.Unlock()

	if err := inst.Join(seller, escrow.RoleSeller); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.instances[id] = inst
	r.order = append(r.order, id)
	r.mu.Unlock()
	return inst, nil
}

// Get returns the instance stored under the identifier.
func (r *Registry) Get(id [32]byte) (*escrow.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// List returns all instances in creation order.
func (r *Registry) List() []*escrow.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*escrow.Instance, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.instances[id])
	}
	return out
}
