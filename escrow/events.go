package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"tripact/core/types"
	"tripact/crypto"
)

const (
	EventTypeFunded             = "escrow.funded"
	EventTypeAccepted           = "escrow.accepted"
	EventTypeCancelled          = "escrow.cancelled"
	EventTypeDisputeFiled       = "escrow.dispute_filed"
	EventTypeDisputeResolved    = "escrow.dispute_resolved"
	EventTypeFeeSettled         = "escrow.fee_settled"
	EventTypeReturnConfirmed    = "escrow.return_confirmed"
	EventTypeWithdrawn          = "escrow.withdrawn"
	EventTypeEmergencyWithdrawn = "escrow.emergency_withdrawn"
)

// Fee kinds carried in fee_settled events.
const (
	FeeKindReturnShipping = "return_shipping"
	FeeKindInconvenience  = "inconvenience"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FundedEvent is emitted when a participant claims a role and deposits.
type FundedEvent struct {
	ID          [32]byte
	Participant crypto.Address
	Role        Role
	Amount      *big.Int
	Depositors  int
}

func (FundedEvent) EventType() string { return EventTypeFunded }

func (e FundedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFunded,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"participant": e.Participant.String(),
			"role":        e.Role.String(),
			"amount":      formatAmount(e.Amount),
			"depositors":  strconv.Itoa(e.Depositors),
		},
	}
}

// AcceptedEvent is emitted when the buyer accepts delivery and the product
// payment moves onto the seller's balance.
type AcceptedEvent struct {
	ID     [32]byte
	Buyer  crypto.Address
	Seller crypto.Address
	Amount *big.Int
}

func (AcceptedEvent) EventType() string { return EventTypeAccepted }

func (e AcceptedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeAccepted,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"buyer":  e.Buyer.String(),
			"seller": e.Seller.String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// CancelledEvent is emitted when the buyer backs out with no claimed defect.
// The accompanying fee_settled events carry the balance movements.
type CancelledEvent struct {
	ID    [32]byte
	Buyer crypto.Address
}

func (CancelledEvent) EventType() string { return EventTypeCancelled }

func (e CancelledEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeCancelled,
		Attributes: map[string]string{
			"id":    hex.EncodeToString(e.ID[:]),
			"buyer": e.Buyer.String(),
		},
	}
}

// DisputeFiledEvent is emitted when the buyer cancels claiming a defect.
type DisputeFiledEvent struct {
	ID    [32]byte
	Buyer crypto.Address
}

func (DisputeFiledEvent) EventType() string { return EventTypeDisputeFiled }

func (e DisputeFiledEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDisputeFiled,
		Attributes: map[string]string{
			"id":    hex.EncodeToString(e.ID[:]),
			"buyer": e.Buyer.String(),
		},
	}
}

// DisputeResolvedEvent is emitted when the courier arbitrates a dispute.
type DisputeResolvedEvent struct {
	ID            [32]byte
	Courier       crypto.Address
	SellerAtFault bool
}

func (DisputeResolvedEvent) EventType() string { return EventTypeDisputeResolved }

func (e DisputeResolvedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDisputeResolved,
		Attributes: map[string]string{
			"id":            hex.EncodeToString(e.ID[:]),
			"courier":       e.Courier.String(),
			"sellerAtFault": strconv.FormatBool(e.SellerAtFault),
		},
	}
}

// FeeSettledEvent is emitted for every fee movement between internal
// balances. Requested is the scheduled fee; Paid is the amount actually
// collected after draining a short balance.
type FeeSettledEvent struct {
	ID        [32]byte
	Kind      string
	Payer     crypto.Address
	Payee     crypto.Address
	Requested *big.Int
	Paid      *big.Int
}

func (FeeSettledEvent) EventType() string { return EventTypeFeeSettled }

func (e FeeSettledEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFeeSettled,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"kind":      e.Kind,
			"payer":     e.Payer.String(),
			"payee":     e.Payee.String(),
			"requested": formatAmount(e.Requested),
			"paid":      formatAmount(e.Paid),
		},
	}
}

// ReturnConfirmedEvent is emitted when the seller confirms receipt of the
// returned product, completing the transaction.
type ReturnConfirmedEvent struct {
	ID     [32]byte
	Seller crypto.Address
}

func (ReturnConfirmedEvent) EventType() string { return EventTypeReturnConfirmed }

func (e ReturnConfirmedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeReturnConfirmed,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(e.ID[:]),
			"seller": e.Seller.String(),
		},
	}
}

// WithdrawnEvent is emitted when a participant withdraws their settled
// balance after completion.
type WithdrawnEvent struct {
	ID          [32]byte
	Participant crypto.Address
	Role        Role
	Amount      *big.Int
}

func (WithdrawnEvent) EventType() string { return EventTypeWithdrawn }

func (e WithdrawnEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"participant": e.Participant.String(),
			"role":        e.Role.String(),
			"amount":      formatAmount(e.Amount),
		},
	}
}

// EmergencyWithdrawnEvent is emitted when a depositor reverses their funding
// on a stalled instance. The freed role slot is open for a new claimant.
type EmergencyWithdrawnEvent struct {
	ID          [32]byte
	Participant crypto.Address
	Role        Role
	Amount      *big.Int
	Depositors  int
}

func (EmergencyWithdrawnEvent) EventType() string { return EventTypeEmergencyWithdrawn }

func (e EmergencyWithdrawnEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeEmergencyWithdrawn,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"participant": e.Participant.String(),
			"role":        e.Role.String(),
			"amount":      formatAmount(e.Amount),
			"depositors":  strconv.Itoa(e.Depositors),
		},
	}
}
