package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"tripact/core/events"
	"tripact/crypto"
)

type mockLedger struct {
	movedIn     *big.Int
	movedOut    *big.Int
	failMoveIn  bool
	failMoveOut bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{movedIn: big.NewInt(0), movedOut: big.NewInt(0)}
}

func (m *mockLedger) MoveIn(_ crypto.Address, amount *big.Int) error {
	if m.failMoveIn {
		return errors.New("transfer declined")
	}
	m.movedIn.Add(m.movedIn, amount)
	return nil
}

func (m *mockLedger) MoveOut(_ crypto.Address, amount *big.Int) error {
	if m.failMoveOut {
		return errors.New("payout declined")
	}
	m.movedOut.Add(m.movedOut, amount)
	return nil
}

// custodied returns the net amount the ledger currently holds for the
// instance.
func (m *mockLedger) custodied() *big.Int {
	return new(big.Int).Sub(m.movedIn, m.movedOut)
}

type capturingEmitter struct {
	captured []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.captured = append(c.captured, evt)
}

func (c *capturingEmitter) typed(eventType string) []events.Event {
	var out []events.Event
	for _, evt := range c.captured {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func newTestAddress(fill byte) crypto.Address {
	return crypto.NewAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

func testParams() Params {
	return Params{
		Price:                         big.NewInt(1_000),
		ReturnShippingFee:             big.NewInt(180),
		InconvenienceThresholdPercent: 50,
	}
}

func direct(addr crypto.Address) Principal {
	return Principal{Address: addr}
}

func newTestInstance(t *testing.T, params Params, currency CurrencyLedger) *Instance {
	t.Helper()
	inst, err := New([32]byte{0x01}, params, currency)
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	return inst
}

// fundAll claims all three roles so the instance becomes active.
func fundAll(t *testing.T, inst *Instance) (buyer, seller, courier crypto.Address) {
	t.Helper()
	buyer = newTestAddress(0x0B)
	seller = newTestAddress(0x05)
	courier = newTestAddress(0x0C)
	if err := inst.Join(direct(seller), RoleSeller); err != nil {
		t.Fatalf("join seller: %v", err)
	}
	if err := inst.Join(direct(buyer), RoleBuyer); err != nil {
		t.Fatalf("join buyer: %v", err)
	}
	if err := inst.Join(direct(courier), RoleCourier); err != nil {
		t.Fatalf("join courier: %v", err)
	}
	return buyer, seller, courier
}

func assertBalance(t *testing.T, inst *Instance, addr crypto.Address, want string) {
	t.Helper()
	if got := inst.WithdrawableOf(addr).String(); got != want {
		t.Fatalf("unexpected withdrawable for %s: got %s want %s", addr, got, want)
	}
}

func TestJoinClaimsRoleAndFunds(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	emitter := &capturingEmitter{}
	inst.SetEmitter(emitter)

	buyer := newTestAddress(0x0B)
	if err := inst.Join(direct(buyer), RoleBuyer); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := inst.DepositorCount(); got != 1 {
		t.Fatalf("expected 1 depositor, got %d", got)
	}
	if holder, ok := inst.RoleHolder(RoleBuyer); !ok || holder != buyer {
		t.Fatalf("buyer slot not bound")
	}
	assertBalance(t, inst, buyer, "1000")
	if got := currency.movedIn.String(); got != "1000" {
		t.Fatalf("expected 1000 moved in, got %s", got)
	}
	funded := emitter.typed(EventTypeFunded)
	if len(funded) != 1 {
		t.Fatalf("expected one funded event, got %d", len(funded))
	}
	attrs := funded[0].Event().Attributes
	if attrs["role"] != "buyer" || attrs["amount"] != "1000" || attrs["depositors"] != "1" {
		t.Fatalf("unexpected funded attributes: %v", attrs)
	}
}

func TestJoinRejectsClaimedRole(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer := newTestAddress(0x0B)
	if err := inst.Join(direct(buyer), RoleBuyer); err != nil {
		t.Fatalf("join: %v", err)
	}
	// The original claimant retrying fails the same way as a stranger.
	if err := inst.Join(direct(buyer), RoleBuyer); !errors.Is(err, ErrRoleAlreadyClaimed) {
		t.Fatalf("expected ErrRoleAlreadyClaimed, got %v", err)
	}
	other := newTestAddress(0x0E)
	if err := inst.Join(direct(other), RoleBuyer); !errors.Is(err, ErrRoleAlreadyClaimed) {
		t.Fatalf("expected ErrRoleAlreadyClaimed, got %v", err)
	}
	if got := inst.DepositorCount(); got != 1 {
		t.Fatalf("expected 1 depositor, got %d", got)
	}
}

func TestJoinRejectsDelegatedCaller(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	caller := Principal{Address: newTestAddress(0x0B), Delegated: true}
	if err := inst.Join(caller, RoleBuyer); !errors.Is(err, ErrDelegatedCaller) {
		t.Fatalf("expected ErrDelegatedCaller, got %v", err)
	}
	if got := inst.DepositorCount(); got != 0 {
		t.Fatalf("expected no depositors, got %d", got)
	}
}

func TestJoinRejectsSecondRoleForParticipant(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	participant := newTestAddress(0x0B)
	if err := inst.Join(direct(participant), RoleBuyer); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := inst.Join(direct(participant), RoleCourier); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestJoinRollsBackOnTransferFailure(t *testing.T) {
	currency := newMockLedger()
	currency.failMoveIn = true
	inst := newTestInstance(t, testParams(), currency)

	buyer := newTestAddress(0x0B)
	err := inst.Join(direct(buyer), RoleBuyer)
	if !errors.Is(err, ErrTransferInFailed) {
		t.Fatalf("expected ErrTransferInFailed, got %v", err)
	}
	if got := inst.DepositorCount(); got != 0 {
		t.Fatalf("expected rollback to zero depositors, got %d", got)
	}
	if _, ok := inst.RoleHolder(RoleBuyer); ok {
		t.Fatalf("expected buyer slot to be freed")
	}
	assertBalance(t, inst, buyer, "0")

	// The freed slot accepts a new claim once transfers succeed.
	currency.failMoveIn = false
	if err := inst.Join(direct(buyer), RoleBuyer); err != nil {
		t.Fatalf("join after rollback: %v", err)
	}
}

func TestAcceptDeliveryPaysSeller(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	buyer, seller, courier := fundAll(t, inst)

	if err := inst.AcceptDelivery(buyer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	assertBalance(t, inst, buyer, "0")
	assertBalance(t, inst, seller, "2000")
	assertBalance(t, inst, courier, "1000")
	if !inst.Completed() {
		t.Fatalf("expected completed instance")
	}
	// A second call cannot double-credit the seller.
	if err := inst.AcceptDelivery(buyer); !errors.Is(err, ErrTransactionCompleted) {
		t.Fatalf("expected ErrTransactionCompleted, got %v", err)
	}
	assertBalance(t, inst, seller, "2000")
}

func TestAcceptDeliveryRequiresFullFunding(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer := newTestAddress(0x0B)
	if err := inst.Join(direct(buyer), RoleBuyer); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := inst.AcceptDelivery(buyer); !errors.Is(err, ErrIncompleteFunding) {
		t.Fatalf("expected ErrIncompleteFunding, got %v", err)
	}
	assertBalance(t, inst, buyer, "1000")
}

func TestAcceptDeliveryRequiresBuyer(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	_, seller, _ := fundAll(t, inst)
	if err := inst.AcceptDelivery(seller); !errors.Is(err, ErrNotBuyer) {
		t.Fatalf("expected ErrNotBuyer, got %v", err)
	}
}

func TestCancelWithIssueFilesDispute(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	buyer, seller, courier := fundAll(t, inst)

	if err := inst.Cancel(buyer, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !inst.DisputeFiled() {
		t.Fatalf("expected dispute flag")
	}
	if got := inst.CurrentPhase(); got != PhaseDisputed {
		t.Fatalf("expected disputed phase, got %s", got)
	}
	// No funds move until the courier arbitrates.
	assertBalance(t, inst, buyer, "1000")
	assertBalance(t, inst, seller, "1000")
	assertBalance(t, inst, courier, "1000")
}

func TestCancelWithoutIssueSettlesFees(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	emitter := &capturingEmitter{}
	inst.SetEmitter(emitter)
	buyer, seller, courier := fundAll(t, inst)

	if err := inst.Cancel(buyer, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// 1000 - 180 return fee - 500 inconvenience fee.
	assertBalance(t, inst, buyer, "320")
	assertBalance(t, inst, courier, "1180")
	assertBalance(t, inst, seller, "1500")
	if !inst.ReturnSettled() {
		t.Fatalf("expected return leg marked settled")
	}
	if got := inst.CurrentPhase(); got != PhaseReturnPending {
		t.Fatalf("expected return_pending phase, got %s", got)
	}

	fees := emitter.typed(EventTypeFeeSettled)
	if len(fees) != 2 {
		t.Fatalf("expected two fee events, got %d", len(fees))
	}
	first := fees[0].Event().Attributes
	if first["kind"] != FeeKindReturnShipping || first["paid"] != "180" {
		t.Fatalf("unexpected first fee event: %v", first)
	}
	second := fees[1].Event().Attributes
	if second["kind"] != FeeKindInconvenience || second["paid"] != "500" {
		t.Fatalf("unexpected second fee event: %v", second)
	}
}

func TestCancelRequiresBuyer(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	_, _, courier := fundAll(t, inst)
	if err := inst.Cancel(courier, false); !errors.Is(err, ErrNotBuyer) {
		t.Fatalf("expected ErrNotBuyer, got %v", err)
	}
}

func TestCancelCannotRunTwice(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, seller, courier := fundAll(t, inst)
	if err := inst.Cancel(buyer, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.Cancel(buyer, false); err == nil {
		t.Fatalf("expected second cancellation to fail")
	}
	// Fees were not charged twice.
	assertBalance(t, inst, buyer, "320")
	assertBalance(t, inst, courier, "1180")
	assertBalance(t, inst, seller, "1500")
}

func TestResolveDisputeSellerAtFault(t *testing.T) {
	// The return fee exceeds the seller's collateral: the balance is
	// drained in full instead of erroring.
	params := Params{
		Price:                         big.NewInt(1_000),
		ReturnShippingFee:             big.NewInt(1_500),
		InconvenienceThresholdPercent: 50,
	}
	inst := newTestInstance(t, params, newMockLedger())
	buyer, seller, courier := fundAll(t, inst)
	if err := inst.Cancel(buyer, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.ResolveDispute(courier, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertBalance(t, inst, seller, "0")
	assertBalance(t, inst, courier, "2000")
	// No inconvenience fee when the seller is at fault.
	assertBalance(t, inst, buyer, "1000")
}

func TestResolveDisputeBuyerAtFault(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, seller, courier := fundAll(t, inst)
	if err := inst.Cancel(buyer, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.ResolveDispute(courier, false); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assertBalance(t, inst, buyer, "320")
	assertBalance(t, inst, courier, "1180")
	assertBalance(t, inst, seller, "1500")
}

func TestResolveDisputeRequiresDispute(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, _, courier := fundAll(t, inst)
	if err := inst.ResolveDispute(courier, true); !errors.Is(err, ErrNoDisputeFiled) {
		t.Fatalf("expected ErrNoDisputeFiled, got %v", err)
	}
	if err := inst.Cancel(buyer, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.ResolveDispute(courier, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// The dispute is consumed; arbitration cannot re-run and double-charge.
	if err := inst.ResolveDispute(courier, true); !errors.Is(err, ErrNoDisputeFiled) {
		t.Fatalf("expected ErrNoDisputeFiled on second resolve, got %v", err)
	}
}

func TestResolveDisputeRequiresCourier(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, seller, _ := fundAll(t, inst)
	if err := inst.Cancel(buyer, true); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.ResolveDispute(seller, true); !errors.Is(err, ErrNotCourier) {
		t.Fatalf("expected ErrNotCourier, got %v", err)
	}
}

func TestConfirmReturnReceived(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, seller, _ := fundAll(t, inst)

	if err := inst.ConfirmReturnReceived(seller); !errors.Is(err, ErrNoReturnInProgress) {
		t.Fatalf("expected ErrNoReturnInProgress, got %v", err)
	}
	if err := inst.Cancel(buyer, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := inst.ConfirmReturnReceived(buyer); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if err := inst.ConfirmReturnReceived(seller); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !inst.Completed() {
		t.Fatalf("expected completed instance")
	}
}

func TestWithdrawLifecycle(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	buyer, seller, courier := fundAll(t, inst)

	if err := inst.Withdraw(seller); !errors.Is(err, ErrTransactionOngoing) {
		t.Fatalf("expected ErrTransactionOngoing, got %v", err)
	}
	if err := inst.AcceptDelivery(buyer); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// The buyer's balance went to the seller; there is nothing to pay out.
	if err := inst.Withdraw(buyer); !errors.Is(err, ErrNoOutstandingBalance) {
		t.Fatalf("expected ErrNoOutstandingBalance, got %v", err)
	}
	if err := inst.Withdraw(seller); err != nil {
		t.Fatalf("withdraw seller: %v", err)
	}
	if err := inst.Withdraw(seller); !errors.Is(err, ErrNoOutstandingBalance) {
		t.Fatalf("expected ErrNoOutstandingBalance on second withdraw, got %v", err)
	}
	if err := inst.Withdraw(courier); err != nil {
		t.Fatalf("withdraw courier: %v", err)
	}
	if got := currency.movedOut.String(); got != "3000" {
		t.Fatalf("expected 3000 paid out, got %s", got)
	}
}

func TestWithdrawRestoresBalanceOnPayoutFailure(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	buyer, seller, _ := fundAll(t, inst)
	if err := inst.AcceptDelivery(buyer); err != nil {
		t.Fatalf("accept: %v", err)
	}

	currency.failMoveOut = true
	if err := inst.Withdraw(seller); !errors.Is(err, ErrTransferOutFailed) {
		t.Fatalf("expected ErrTransferOutFailed, got %v", err)
	}
	assertBalance(t, inst, seller, "2000")

	currency.failMoveOut = false
	if err := inst.Withdraw(seller); err != nil {
		t.Fatalf("withdraw after payout recovery: %v", err)
	}
	assertBalance(t, inst, seller, "0")
}

func TestEmergencyWithdrawRecoversStalledFunding(t *testing.T) {
	currency := newMockLedger()
	inst := newTestInstance(t, testParams(), currency)
	seller := newTestAddress(0x05)
	if err := inst.Join(direct(seller), RoleSeller); err != nil {
		t.Fatalf("join: %v", err)
	}
	inst.SetNowFunc(func() time.Time { return inst.CreatedAt().Add(4 * time.Hour) })

	if err := inst.EmergencyWithdraw(seller); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if got := inst.DepositorCount(); got != 0 {
		t.Fatalf("expected 0 depositors, got %d", got)
	}
	if _, ok := inst.RoleHolder(RoleSeller); ok {
		t.Fatalf("expected seller slot to be freed")
	}
	if got := currency.movedOut.String(); got != "1000" {
		t.Fatalf("expected 1000 paid out, got %s", got)
	}
	// The freed slot accepts a new claimant.
	other := newTestAddress(0x06)
	if err := inst.Join(direct(other), RoleSeller); err != nil {
		t.Fatalf("rejoin freed slot: %v", err)
	}
}

func TestEmergencyWithdrawGuards(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	seller := newTestAddress(0x05)
	if err := inst.Join(direct(seller), RoleSeller); err != nil {
		t.Fatalf("join: %v", err)
	}

	inst.SetNowFunc(func() time.Time { return inst.CreatedAt().Add(time.Hour) })
	if err := inst.EmergencyWithdraw(seller); !errors.Is(err, ErrWaitingPeriodNotElapsed) {
		t.Fatalf("expected ErrWaitingPeriodNotElapsed, got %v", err)
	}

	inst.SetNowFunc(func() time.Time { return inst.CreatedAt().Add(4 * time.Hour) })
	stranger := newTestAddress(0x0F)
	if err := inst.EmergencyWithdraw(stranger); !errors.Is(err, ErrNoOutstandingBalance) {
		t.Fatalf("expected ErrNoOutstandingBalance, got %v", err)
	}
}

func TestEmergencyWithdrawRejectedWhenFullyFunded(t *testing.T) {
	inst := newTestInstance(t, testParams(), newMockLedger())
	buyer, _, _ := fundAll(t, inst)
	inst.SetNowFunc(func() time.Time { return inst.CreatedAt().Add(24 * time.Hour) })
	if err := inst.EmergencyWithdraw(buyer); !errors.Is(err, ErrFullyFunded) {
		t.Fatalf("expected ErrFullyFunded, got %v", err)
	}
}

// No transition may conjure balance: the sum of internal balances never
// exceeds the net amount custodied by the currency ledger.
func TestBalanceConservation(t *testing.T) {
	scenarios := []struct {
		name string
		run  func(t *testing.T, inst *Instance, buyer, seller, courier crypto.Address)
	}{
		{"accept", func(t *testing.T, inst *Instance, buyer, _, _ crypto.Address) {
			if err := inst.AcceptDelivery(buyer); err != nil {
				t.Fatalf("accept: %v", err)
			}
		}},
		{"cancel", func(t *testing.T, inst *Instance, buyer, seller, _ crypto.Address) {
			if err := inst.Cancel(buyer, false); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if err := inst.ConfirmReturnReceived(seller); err != nil {
				t.Fatalf("confirm: %v", err)
			}
		}},
		{"dispute", func(t *testing.T, inst *Instance, buyer, seller, courier crypto.Address) {
			if err := inst.Cancel(buyer, true); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if err := inst.ResolveDispute(courier, false); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if err := inst.ConfirmReturnReceived(seller); err != nil {
				t.Fatalf("confirm: %v", err)
			}
		}},
	}
	for _, tc := range scenarios {
		t.Run(tc.name, func(t *testing.T) {
			currency := newMockLedger()
			inst := newTestInstance(t, testParams(), currency)
			buyer, seller, courier := fundAll(t, inst)
			tc.run(t, inst, buyer, seller, courier)

			sum := big.NewInt(0)
			for _, addr := range []crypto.Address{buyer, seller, courier} {
				sum.Add(sum, inst.WithdrawableOf(addr))
			}
			if sum.Cmp(currency.custodied()) > 0 {
				t.Fatalf("internal balances %s exceed custodied funds %s", sum, currency.custodied())
			}

			for _, addr := range []crypto.Address{buyer, seller, courier} {
				if inst.WithdrawableOf(addr).Sign() == 0 {
					continue
				}
				if err := inst.Withdraw(addr); err != nil {
					t.Fatalf("withdraw: %v", err)
				}
			}
			if got := currency.custodied().Sign(); got != 0 {
				t.Fatalf("expected empty custody after withdrawals, got %s", currency.custodied())
			}
		})
	}
}
