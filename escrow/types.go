package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Role is one of the three functional identities bound to a settlement
// instance. Each role is held by at most one participant.
type Role uint8

const (
	RoleBuyer Role = iota + 1
	RoleSeller
	RoleCourier
)

// Valid reports whether the role value is within the supported range.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleCourier:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	case RoleCourier:
		return "courier"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole maps a wire-format role name onto its Role value.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buyer":
		return RoleBuyer, nil
	case "seller":
		return RoleSeller, nil
	case "courier":
		return RoleCourier, nil
	default:
		return 0, fmt.Errorf("escrow: unknown role %q", s)
	}
}

// Phase is the lifecycle state of a settlement instance. Transitions are
// strictly linear so no fee settlement or completion can be re-entered.
type Phase uint8

const (
	// PhaseFunding: fewer than three roles have deposited.
	PhaseFunding Phase = iota
	// PhaseActive: all three deposits are held, awaiting the buyer's call.
	PhaseActive
	// PhaseDisputed: the buyer cancelled claiming a defect, awaiting the
	// courier's arbitration.
	PhaseDisputed
	// PhaseReturnPending: fees are settled and the courier is carrying the
	// product back, awaiting the seller's confirmation.
	PhaseReturnPending
	// PhaseCompleted: terminal. Withdrawals are unlocked.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseFunding:
		return "funding"
	case PhaseActive:
		return "active"
	case PhaseDisputed:
		return "disputed"
	case PhaseReturnPending:
		return "return_pending"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Params are the immutable economic terms of a settlement instance. Price is
// both the product price and the fixed deposit each role must custody.
type Params struct {
	Price                         *big.Int
	ReturnShippingFee             *big.Int
	InconvenienceThresholdPercent uint32
}

// Validate checks the construction-time constraints on the terms.
func (p Params) Validate() error {
	if p.Price == nil || p.Price.Sign() <= 0 {
		return fmt.Errorf("escrow: price must be positive")
	}
	if p.ReturnShippingFee == nil || p.ReturnShippingFee.Sign() < 0 {
		return fmt.Errorf("escrow: return shipping fee must be non-negative")
	}
	if p.InconvenienceThresholdPercent > 100 {
		return fmt.Errorf("escrow: inconvenience threshold out of range: %d", p.InconvenienceThresholdPercent)
	}
	return nil
}

// Clone returns a deep copy so callers can hold the terms without aliasing
// the instance's own values.
func (p Params) Clone() Params {
	clone := Params{InconvenienceThresholdPercent: p.InconvenienceThresholdPercent}
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	}
	if p.ReturnShippingFee != nil {
		clone.ReturnShippingFee = new(big.Int).Set(p.ReturnShippingFee)
	}
	return clone
}

// InconvenienceFee computes the penalty charged to a buyer who cancels
// without a legitimate issue: floor(price * percent / 100).
func (p Params) InconvenienceFee() *big.Int {
	if p.Price == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(p.Price, new(big.Int).SetUint64(uint64(p.InconvenienceThresholdPercent)))
	return fee.Div(fee, big.NewInt(100))
}

// DepositorRecord tracks one participant's role and the internal balance the
// instance currently owes them. The balance is distinct from the custodied
// funds held by the currency ledger.
type DepositorRecord struct {
	Role         Role
	Withdrawable *big.Int
}

// Clone returns a deep copy of the record.
func (r *DepositorRecord) Clone() *DepositorRecord {
	if r == nil {
		return nil
	}
	clone := &DepositorRecord{Role: r.Role, Withdrawable: big.NewInt(0)}
	if r.Withdrawable != nil {
		clone.Withdrawable = new(big.Int).Set(r.Withdrawable)
	}
	return clone
}
