package escrow

import (
	"math/big"
	"time"

	"tripact/crypto"
)

// The query surface is read-only and has no side effects. All accessors take
// the instance mutex so readers never observe a transition half-applied.

// ID returns the instance identifier.
func (i *Instance) ID() [32]byte { return i.id }

// Terms returns a copy of the immutable economic terms.
func (i *Instance) Terms() Params { return i.params.Clone() }

// CreatedAt returns the construction timestamp anchoring the idle-timeout
// recovery window.
func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// EmergencyWait returns the configured idle-timeout waiting period.
func (i *Instance) EmergencyWait() time.Duration { return i.emergencyWait }

// Currency returns the custody boundary the instance settles through.
func (i *Instance) Currency() CurrencyLedger { return i.currency }

// CurrentPhase returns the instance's lifecycle phase.
func (i *Instance) CurrentPhase() Phase {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phase
}

// DepositorCount returns the number of funded role slots (0 to 3).
func (i *Instance) DepositorCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.depositors
}

// RoleHolder returns the participant bound to the role, if any.
func (i *Instance) RoleHolder(role Role) (crypto.Address, bool) {
	if !role.Valid() {
		return crypto.Address{}, false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	addr := i.roles[roleIndex(role)]
	return addr, !addr.IsZero()
}

// RecordOf returns a copy of the participant's depositor record.
func (i *Instance) RecordOf(addr crypto.Address) (*DepositorRecord, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[addr]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// WithdrawableOf returns the internal balance the instance currently owes
// the participant. Unknown participants read as zero.
func (i *Instance) WithdrawableOf(addr crypto.Address) *big.Int {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(rec.Withdrawable)
}

// DisputeFiled reports whether the buyer ever filed a dispute.
func (i *Instance) DisputeFiled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disputeFiled
}

// ReturnSettled reports whether a return-fee settlement has executed, i.e.
// the courier's return leg has been paid for.
func (i *Instance) ReturnSettled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.returnSettled
}

// Completed reports whether the instance reached its terminal state.
func (i *Instance) Completed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.phase == PhaseCompleted
}
