package rental

import (
	"fmt"
	"math"
)

// Totals tracks the conservation ledger: everything ever paid into the engine
// must equal withdrawable balances plus completed payouts plus deposits still
// escrowed on rented or returned items.
//
//	PaidIn == sum(balances) + Withdrawn + Escrowed
type Totals struct {
	PaidIn    uint64
	Withdrawn uint64
	Escrowed  uint64
}

func (t Totals) addPaidIn(amount uint64) (Totals, error) {
	if amount > math.MaxUint64-t.PaidIn {
		return t, fmt.Errorf("%w: paid-in total", ErrAmountOverflow)
	}
	t.PaidIn += amount
	return t, nil
}

func (t Totals) addWithdrawn(amount uint64) (Totals, error) {
	if amount > math.MaxUint64-t.Withdrawn {
		return t, fmt.Errorf("%w: withdrawn total", ErrAmountOverflow)
	}
	t.Withdrawn += amount
	return t, nil
}

func (t Totals) addEscrowed(amount uint64) (Totals, error) {
	if amount > math.MaxUint64-t.Escrowed {
		return t, fmt.Errorf("%w: escrowed total", ErrAmountOverflow)
	}
	t.Escrowed += amount
	return t, nil
}

func (t Totals) subEscrowed(amount uint64) (Totals, error) {
	if amount > t.Escrowed {
		return t, fmt.Errorf("rental: escrowed total underflow (%d < %d)", t.Escrowed, amount)
	}
	t.Escrowed -= amount
	return t, nil
}
