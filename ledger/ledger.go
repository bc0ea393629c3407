// Package ledger implements the fungible settlement currency used to custody
// escrow deposits. It exposes transfer/transferFrom-style semantics: a
// participant first approves the instance vault as a spender, after which the
// escrow core can pull the deposit in and pay balances back out.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"tripact/crypto"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the payer's
	// balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrInsufficientAllowance is returned when a delegated transfer exceeds
	// the spender's remaining allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)

// Token is an in-memory fungible currency ledger. All methods are safe for
// concurrent use.
type Token struct {
	mu         sync.Mutex
	symbol     string
	balances   map[crypto.Address]*big.Int
	allowances map[crypto.Address]map[crypto.Address]*big.Int
}

// NewToken creates an empty ledger for the given currency symbol. The symbol
// is normalised to its canonical uppercase form.
func NewToken(symbol string) (*Token, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return nil, fmt.Errorf("ledger: empty currency symbol")
	}
	return &Token{
		symbol:     trimmed,
		balances:   make(map[crypto.Address]*big.Int),
		allowances: make(map[crypto.Address]map[crypto.Address]*big.Int),
	}, nil
}

// Symbol returns the canonical currency symbol.
func (t *Token) Symbol() string { return t.symbol }

func validAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("ledger: nil amount")
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("ledger: negative amount")
	}
	return nil
}

func (t *Token) balance(addr crypto.Address) *big.Int {
	if bal, ok := t.balances[addr]; ok {
		return bal
	}
	bal := big.NewInt(0)
	t.balances[addr] = bal
	return bal
}

// Mint credits newly issued currency to the given account.
func (t *Token) Mint(to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(to)
	bal.Add(bal, amount)
	return nil
}

// BalanceOf returns the current balance of the given account.
func (t *Token) BalanceOf(addr crypto.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(addr))
}

// Approve sets the amount the spender may transfer out of the owner's
// account. A subsequent call replaces the previous allowance.
func (t *Token) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[crypto.Address]*big.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the remaining amount the spender may transfer out of the
// owner's account.
func (t *Token) Allowance(owner, spender crypto.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if spenders, ok := t.allowances[owner]; ok {
		if remaining, ok := spenders[spender]; ok {
			return new(big.Int).Set(remaining)
		}
	}
	return big.NewInt(0)
}

// Transfer moves currency between two accounts.
func (t *Token) Transfer(from, to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves currency out of the owner's account on behalf of the
// spender, consuming the spender's allowance.
func (t *Token) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders, ok := t.allowances[from]
	if !ok {
		return ErrInsufficientAllowance
	}
	remaining, ok := spenders[spender]
	if !ok || remaining.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	remaining.Sub(remaining, amount)
	return nil
}

func (t *Token) move(from, to crypto.Address, amount *big.Int) error {
	fromBal := t.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromBal.Sub(fromBal, amount)
	toBal := t.balance(to)
	toBal.Add(toBal, amount)
	return nil
}
