// Package escrow implements the per-transaction settlement state machine for
// a three-party physical-goods trade. Buyer, seller and courier each custody
// an equal deposit; the instance releases, splits or penalises those deposits
// according to how the transaction concludes.
package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"tripact/core/events"
	"tripact/crypto"
)

// DefaultEmergencyWait is the minimum idle time before an under-funded
// instance permits deposit reversal.
const DefaultEmergencyWait = 3 * time.Hour

// CurrencyLedger is the external custody boundary. MoveIn pulls a deposit
// from a participant, MoveOut pays a settled balance back. These are the only
// two points where real value crosses into or out of the instance.
type CurrencyLedger interface {
	MoveIn(from crypto.Address, amount *big.Int) error
	MoveOut(to crypto.Address, amount *big.Int) error
}

// Principal identifies the caller of a role-funding request. Delegated marks
// a request forwarded by an intermediary rather than issued by the
// accountable principal's own session; such requests are rejected.
type Principal struct {
	Address   crypto.Address
	Delegated bool
}

// Instance is one settlement transaction. Every state-mutating operation is
// serialized by the instance mutex and finalizes all internal bookkeeping
// before the external currency transfer is issued; a failed transfer is
// compensated by an explicit rollback write.
type Instance struct {
	id            [32]byte
	params        Params
	currency      CurrencyLedger
	createdAt     time.Time
	emergencyWait time.Duration

	mu            sync.Mutex
	phase         Phase
	roles         [3]crypto.Address
	records       map[crypto.Address]*DepositorRecord
	depositors    int
	disputeFiled  bool
	returnSettled bool

	emitter events.Emitter
	nowFn   func() time.Time
}

// New constructs an instance with the given immutable terms. The creation
// timestamp is captured here and anchors the idle-timeout recovery window.
func New(id [32]byte, params Params, currency CurrencyLedger) (*Instance, error) {
	if currency == nil {
		return nil, fmt.Errorf("escrow: currency ledger required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Instance{
		id:            id,
		params:        params.Clone(),
		currency:      currency,
		createdAt:     time.Now(),
		emergencyWait: DefaultEmergencyWait,
		phase:         PhaseFunding,
		records:       make(map[crypto.Address]*DepositorRecord),
		emitter:       events.NoopEmitter{},
		nowFn:         time.Now,
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (i *Instance) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		i.emitter = events.NoopEmitter{}
		return
	}
	i.emitter = emitter
}

// SetNowFunc overrides the time source used for the idle-timeout check.
// Primarily intended for tests.
func (i *Instance) SetNowFunc(now func() time.Time) {
	if now == nil {
		i.nowFn = time.Now
		return
	}
	i.nowFn = now
}

// SetEmergencyWait overrides the idle-timeout waiting period. Non-positive
// values are ignored.
func (i *Instance) SetEmergencyWait(wait time.Duration) {
	if wait <= 0 {
		return
	}
	i.emergencyWait = wait
}

func (i *Instance) emit(evt events.Event) {
	if i.emitter == nil {
		return
	}
	i.emitter.Emit(evt)
}

func (i *Instance) now() time.Time {
	if i.nowFn == nil {
		return time.Now()
	}
	return i.nowFn()
}

func roleIndex(r Role) int { return int(r) - 1 }

var roleErrors = map[Role]error{
	RoleBuyer:   ErrNotBuyer,
	RoleSeller:  ErrNotSeller,
	RoleCourier: ErrNotCourier,
}

func (i *Instance) requireRole(caller crypto.Address, role Role) error {
	rec, ok := i.records[caller]
	if !ok || rec.Role != role {
		return roleErrors[role]
	}
	return nil
}

// Join binds the caller to the targeted role and custodies their deposit.
// The record write, slot binding and counter increment are rolled back as a
// unit when the currency transfer fails.
func (i *Instance) Join(caller Principal, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("escrow: invalid role %d", role)
	}
	if caller.Delegated {
		return ErrDelegatedCaller
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phase != PhaseFunding {
		return ErrRoleAlreadyClaimed
	}
	idx := roleIndex(role)
	if !i.roles[idx].IsZero() {
		return ErrRoleAlreadyClaimed
	}
	if _, ok := i.records[caller.Address]; ok {
		return ErrAlreadyJoined
	}

	deposit := new(big.Int).Set(i.params.Price)
	i.roles[idx] = caller.Address
	i.records[caller.Address] = &DepositorRecord{Role: role, Withdrawable: deposit}
	i.depositors++
	if err := i.currency.MoveIn(caller.Address, i.params.Price); err != nil {
		i.roles[idx] = crypto.Address{}
		delete(i.records, caller.Address)
		i.depositors--
		return fmt.Errorf("%w: %s", ErrTransferInFailed, err)
	}
	if i.depositors == 3 {
		i.phase = PhaseActive
	}
	i.emit(FundedEvent{
		ID:          i.id,
		Participant: caller.Address,
		Role:        role,
		Amount:      new(big.Int).Set(i.params.Price),
		Depositors:  i.depositors,
	})
	return nil
}

// AcceptDelivery ends the transaction in the seller's favour: the buyer's
// entire withdrawable balance becomes the seller's product payment. Only
// reachable while the instance is active, so it cannot double-credit.
func (i *Instance) AcceptDelivery(caller crypto.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.requireRole(caller, RoleBuyer); err != nil {
		return err
	}
	switch i.phase {
	case PhaseFunding:
		return ErrIncompleteFunding
	case PhaseCompleted:
		return ErrTransactionCompleted
	case PhaseDisputed, PhaseReturnPending:
		return fmt.Errorf("escrow: cannot accept delivery in phase %s", i.phase)
	}
	buyer := i.records[caller]
	sellerAddr := i.roles[roleIndex(RoleSeller)]
	seller := i.records[sellerAddr]
	amount := new(big.Int).Set(buyer.Withdrawable)
	seller.Withdrawable.Add(seller.Withdrawable, amount)
	buyer.Withdrawable.SetInt64(0)
	i.phase = PhaseCompleted
	i.emit(AcceptedEvent{ID: i.id, Buyer: caller, Seller: sellerAddr, Amount: amount})
	return nil
}

// Cancel is the buyer's exit from an active transaction. With a claimed
// defect it files a dispute and moves no funds; without one it settles the
// return-shipping and inconvenience fees against the buyer and opens the
// return leg.
func (i *Instance) Cancel(caller crypto.Address, hasIssue bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.requireRole(caller, RoleBuyer); err != nil {
		return err
	}
	switch i.phase {
	case PhaseFunding:
		return ErrIncompleteFunding
	case PhaseCompleted:
		return ErrTransactionCompleted
	case PhaseDisputed, PhaseReturnPending:
		return fmt.Errorf("escrow: cannot cancel in phase %s", i.phase)
	}
	if hasIssue {
		i.disputeFiled = true
		i.phase = PhaseDisputed
		i.emit(DisputeFiledEvent{ID: i.id, Buyer: caller})
		return nil
	}
	i.emit(CancelledEvent{ID: i.id, Buyer: caller})
	// Return fee first: the inconvenience fee draws from whatever balance
	// remains after it.
	i.settleReturnFee(caller)
	i.settleInconvenienceFee(caller)
	i.phase = PhaseReturnPending
	return nil
}

// ResolveDispute is the courier's arbitration of a filed dispute. The
// determination is final; with the seller at fault only the return fee is
// charged to the seller, otherwise both fees are charged to the buyer.
func (i *Instance) ResolveDispute(caller crypto.Address, reallyHasIssue bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.requireRole(caller, RoleCourier); err != nil {
		return err
	}
	if i.phase != PhaseDisputed {
		return ErrNoDisputeFiled
	}
	if reallyHasIssue {
		i.settleReturnFee(i.roles[roleIndex(RoleSeller)])
	} else {
		buyerAddr := i.roles[roleIndex(RoleBuyer)]
		i.settleReturnFee(buyerAddr)
		i.settleInconvenienceFee(buyerAddr)
	}
	i.phase = PhaseReturnPending
	i.emit(DisputeResolvedEvent{ID: i.id, Courier: caller, SellerAtFault: reallyHasIssue})
	return nil
}

// ConfirmReturnReceived is the seller's acknowledgement that the courier
// delivered the product back. All balance movements already happened when the
// fees were settled; this transition only unlocks withdrawal.
func (i *Instance) ConfirmReturnReceived(caller crypto.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.requireRole(caller, RoleSeller); err != nil {
		return err
	}
	if i.phase != PhaseReturnPending {
		return ErrNoReturnInProgress
	}
	i.phase = PhaseCompleted
	i.emit(ReturnConfirmedEvent{ID: i.id, Seller: caller})
	return nil
}

// Withdraw pays out the caller's settled balance. The internal balance is
// zeroed before the external payout is requested, so a reentrant or repeated
// call observes zero; a failed payout restores the balance.
func (i *Instance) Withdraw(caller crypto.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phase != PhaseCompleted {
		return ErrTransactionOngoing
	}
	rec, ok := i.records[caller]
	if !ok || rec.Withdrawable.Sign() == 0 {
		return ErrNoOutstandingBalance
	}
	amount := new(big.Int).Set(rec.Withdrawable)
	rec.Withdrawable.SetInt64(0)
	if err := i.currency.MoveOut(caller, amount); err != nil {
		rec.Withdrawable.Set(amount)
		return fmt.Errorf("%w: %s", ErrTransferOutFailed, err)
	}
	i.emit(WithdrawnEvent{ID: i.id, Participant: caller, Role: rec.Role, Amount: amount})
	return nil
}

// EmergencyWithdraw reverses the caller's funding on an instance that
// stalled before all three roles deposited. It is the only transition that
// frees a claimed role slot; it is unreachable once funding completes.
func (i *Instance) EmergencyWithdraw(caller crypto.Address) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phase != PhaseFunding {
		return ErrFullyFunded
	}
	if i.now().Sub(i.createdAt) < i.emergencyWait {
		return ErrWaitingPeriodNotElapsed
	}
	rec, ok := i.records[caller]
	if !ok || rec.Withdrawable.Sign() == 0 {
		return ErrNoOutstandingBalance
	}
	role := rec.Role
	amount := new(big.Int).Set(rec.Withdrawable)
	i.roles[roleIndex(role)] = crypto.Address{}
	delete(i.records, caller)
	i.depositors--
	if err := i.currency.MoveOut(caller, amount); err != nil {
		i.roles[roleIndex(role)] = caller
		i.records[caller] = rec
		i.depositors++
		return fmt.Errorf("%w: %s", ErrTransferOutFailed, err)
	}
	i.emit(EmergencyWithdrawnEvent{
		ID:          i.id,
		Participant: caller,
		Role:        role,
		Amount:      amount,
		Depositors:  i.depositors,
	})
	return nil
}
