package escrow

import (
	"math/big"

	"tripact/crypto"
)

// The fee primitives drain, they never error: fees are penalties against
// custodied collateral, not debts, so a short balance is collected in full
// and no deficit is carried forward. Callers hold the instance mutex.

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// settleReturnFee moves up to the flat return-shipping fee from the payer's
// balance onto the courier's and marks the return leg as paid for. It returns
// the amount actually collected.
func (i *Instance) settleReturnFee(payer crypto.Address) *big.Int {
	rec := i.records[payer]
	courierAddr := i.roles[roleIndex(RoleCourier)]
	courier := i.records[courierAddr]
	requested := new(big.Int).Set(i.params.ReturnShippingFee)
	paid := minBig(requested, rec.Withdrawable)
	rec.Withdrawable.Sub(rec.Withdrawable, paid)
	courier.Withdrawable.Add(courier.Withdrawable, paid)
	i.returnSettled = true
	i.emit(FeeSettledEvent{
		ID:        i.id,
		Kind:      FeeKindReturnShipping,
		Payer:     payer,
		Payee:     courierAddr,
		Requested: requested,
		Paid:      paid,
	})
	return paid
}

// settleInconvenienceFee moves up to floor(price * percent / 100) from the
// buyer's balance onto the seller's. It returns the amount actually
// collected.
func (i *Instance) settleInconvenienceFee(buyer crypto.Address) *big.Int {
	rec := i.records[buyer]
	sellerAddr := i.roles[roleIndex(RoleSeller)]
	seller := i.records[sellerAddr]
	requested := i.params.InconvenienceFee()
	paid := minBig(requested, rec.Withdrawable)
	rec.Withdrawable.Sub(rec.Withdrawable, paid)
	seller.Withdrawable.Add(seller.Withdrawable, paid)
	i.emit(FeeSettledEvent{
		ID:        i.id,
		Kind:      FeeKindInconvenience,
		Payer:     buyer,
		Payee:     sellerAddr,
		Requested: requested,
		Paid:      paid,
	})
	return paid
}
