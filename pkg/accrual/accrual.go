// Package accrual holds the pure functions every ledger value is derived
// from. Nothing here stores state or reads the clock: callers pass the
// current time and the recorded balances in.
package accrual

import (
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

// ceil(a / b) for a >= 0, b > 0
func ceilDiv(a, b types.Timestamp) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return int64(q)
}

// 1-based count of months begun since start, frozen at end once it is set
// and reached. Returns 0 before the lease starts.
func BillingPeriod(now, start types.Timestamp, end *types.Timestamp) int64 {
	if now < start {
		return 0
	}

	t := now
	if end != nil && *end < now {
		t = *end
	}
	if t < start {
		return 0
	}

	return ceilDiv(t-start, types.Month)
}

// net standing of the tenant once the deposit is set aside;
// negative means rent is owed beyond what the deposit alone covers
func TenantBalance(balance, fee, deposit, withdrawn decimal.Decimal, period int64) decimal.Decimal {
	owed := fee.Mul(decimal.NewFromInt(period))
	return balance.Sub(owed).Add(withdrawn).Sub(deposit)
}

// classifies the tenant from their balance
func TenantState(fee, deposit decimal.Decimal, period int64, tenantBalance decimal.Decimal) types.TenantState {
	switch {
	case !tenantBalance.IsNegative():
		return types.OnTime
	case period == 0:
		// not started yet, never defaulted
		return types.Belated
	case tenantBalance.Add(deposit).GreaterThanOrEqual(fee):
		// deposit can still cover one more month
		return types.Belated
	default:
		return types.Defaulted
	}
}

// what the owner is entitled to take out. This is an entitlement, not
// transferable cash: it is not capped by balance, callers moving funds clamp
// it to the balance themselves. Never negative.
func Withdrawable(balance, fee decimal.Decimal, state types.TenantState, withdrawn decimal.Decimal, period int64) decimal.Decimal {
	if state == types.Defaulted {
		return balance
	}

	w := fee.Mul(decimal.NewFromInt(period)).Sub(withdrawn)
	if w.IsNegative() {
		return decimal.Zero
	}
	return w
}

// what is left for the tenant once the owner's share is set aside
func Remainder(balance, withdrawable decimal.Decimal) decimal.Decimal {
	return balance.Sub(withdrawable)
}

// rounds proposedEnd up to the next whole month after start
func RoundedEnd(start, proposedEnd types.Timestamp) types.Timestamp {
	if proposedEnd <= start {
		return start
	}
	months := ceilDiv(proposedEnd-start, types.Month)
	return start + types.Timestamp(months)*types.Month
}
