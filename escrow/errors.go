package escrow

import "errors"

var (
	// ErrRoleAlreadyClaimed is returned when the targeted role slot is
	// already bound to a participant.
	ErrRoleAlreadyClaimed = errors.New("escrow: role already claimed")
	// ErrAlreadyJoined is returned when a participant who already holds a
	// role tries to claim a second one.
	ErrAlreadyJoined = errors.New("escrow: participant already holds a role")
	// ErrDelegatedCaller is returned when a role-funding request does not
	// originate from a directly-acting principal.
	ErrDelegatedCaller = errors.New("escrow: caller is not a direct principal")

	// ErrNotBuyer, ErrNotSeller and ErrNotCourier are returned when the
	// caller does not hold the role an operation requires.
	ErrNotBuyer   = errors.New("escrow: caller is not the buyer")
	ErrNotSeller  = errors.New("escrow: caller is not the seller")
	ErrNotCourier = errors.New("escrow: caller is not the courier")

	// ErrIncompleteFunding is returned when a completion transition is
	// attempted before all three roles have deposited.
	ErrIncompleteFunding = errors.New("escrow: funding incomplete")
	// ErrTransactionCompleted is returned when a transition is attempted on
	// an instance that already reached its terminal state.
	ErrTransactionCompleted = errors.New("escrow: transaction already completed")
	// ErrTransactionOngoing is returned when a withdrawal is attempted
	// before the instance reached its terminal state.
	ErrTransactionOngoing = errors.New("escrow: transaction still ongoing")
	// ErrNoDisputeFiled is returned when arbitration is attempted with no
	// dispute pending.
	ErrNoDisputeFiled = errors.New("escrow: no dispute filed")
	// ErrNoReturnInProgress is returned when a return confirmation is
	// attempted with no fee-settled return leg pending.
	ErrNoReturnInProgress = errors.New("escrow: no return in progress")

	// ErrNoOutstandingBalance is returned when the caller's withdrawable
	// balance is already zero or the caller never deposited.
	ErrNoOutstandingBalance = errors.New("escrow: no outstanding balance")

	// ErrFullyFunded is returned when an emergency withdrawal is attempted
	// on an instance that is no longer stalled.
	ErrFullyFunded = errors.New("escrow: emergency withdrawal not allowed when fully funded")
	// ErrWaitingPeriodNotElapsed is returned when an emergency withdrawal
	// is attempted before the idle timeout expired.
	ErrWaitingPeriodNotElapsed = errors.New("escrow: waiting period not elapsed")

	// ErrTransferInFailed wraps a currency ledger failure while pulling a
	// deposit in. The enclosing operation is rolled back in full.
	ErrTransferInFailed = errors.New("escrow: currency transfer in failed")
	// ErrTransferOutFailed wraps a currency ledger failure while paying a
	// balance out. The zeroed balance is restored.
	ErrTransferOutFailed = errors.New("escrow: currency transfer out failed")
)
