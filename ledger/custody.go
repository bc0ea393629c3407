package ledger

import (
	"math/big"

	"tripact/crypto"
)

// Custody binds a token ledger to an instance vault address. It is the only
// surface the escrow core talks to: MoveIn pulls a deposit from a participant
// into the vault, MoveOut pays a settled balance back. Deposits are pulled
// under the operator's allowance, a well-known module address participants
// approve once; the vault itself only ever holds funds.
type Custody struct {
	token    *Token
	operator crypto.Address
	vault    crypto.Address
}

// NewCustody creates the custody binding for an instance vault.
func NewCustody(token *Token, operator, vault crypto.Address) *Custody {
	return &Custody{token: token, operator: operator, vault: vault}
}

// Vault returns the custody vault address.
func (c *Custody) Vault() crypto.Address { return c.vault }

// Operator returns the module address participants must approve before their
// deposit can be pulled in.
func (c *Custody) Operator() crypto.Address { return c.operator }

// Symbol returns the custodied currency's symbol.
func (c *Custody) Symbol() string { return c.token.Symbol() }

// MoveIn pulls amount from the participant's account into the vault. The
// participant must have approved the operator as a spender beforehand.
func (c *Custody) MoveIn(from crypto.Address, amount *big.Int) error {
	return c.token.TransferFrom(c.operator, from, c.vault, amount)
}

// MoveOut pays amount out of the vault to the participant's account.
func (c *Custody) MoveOut(to crypto.Address, amount *big.Int) error {
	return c.token.Transfer(c.vault, to, amount)
}

// Held returns the amount currently custodied in the vault.
func (c *Custody) Held() *big.Int {
	return c.token.BalanceOf(c.vault)
}
