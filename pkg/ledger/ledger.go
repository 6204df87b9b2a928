// Package ledger implements the per-lease financial state machine: rent
// accrual, the security deposit, owner withdrawals and the termination
// protocol. Every operation is atomic: it either applies fully and reports
// what happened, or fails before touching the record.
package ledger

import (
	"fmt"
	"sync"

	"github.com/pixperk/leasebook/pkg/accrual"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

// a single landlord/tenant lease
// critical :
// - balance never goes negative
// - withdrawn never decreases
// - end is written once
// - a terminated ledger rejects everything
type Ledger struct {
	mu sync.Mutex

	id    uint64
	terms types.Terms

	end         *types.Timestamp //nil until a termination is notified
	withdrawn   decimal.Decimal  //cumulative amount the owner pulled out
	tenantState types.TenantState
	balance     decimal.Decimal //funds currently held
	status      types.Status
}

// outcome of a successful operation
type Receipt struct {
	// funds leaving the ledger and who receives them, zero when none
	Transferred decimal.Decimal
	Recipient   types.Principal

	// nil when nothing observable happened
	Event types.Event
}

// opens a ledger for terms at creation time now
func New(id uint64, terms types.Terms, now types.Timestamp) (*Ledger, error) {
	if err := terms.Validate(now); err != nil {
		return nil, err
	}

	return &Ledger{
		id:          id,
		terms:       terms,
		withdrawn:   decimal.Zero,
		tenantState: types.Belated, //consistent with period 0
		balance:     decimal.Zero,
		status:      types.StatusLive,
	}, nil
}

// caller must hold l.mu
func (l *Ledger) checkLive() error {
	if l.status == types.StatusTerminated {
		return fmt.Errorf("%w: lease %d", types.ErrNotLive, l.id)
	}
	return nil
}

// caller must hold l.mu
func (l *Ledger) ended(now types.Timestamp) bool {
	return l.end != nil && now >= *l.end
}

// caller must hold l.mu
func (l *Ledger) period(now types.Timestamp) int64 {
	return accrual.BillingPeriod(now, l.terms.Start, l.end)
}

// caller must hold l.mu
func (l *Ledger) withdrawable(now types.Timestamp) decimal.Decimal {
	return accrual.Withdrawable(l.balance, l.terms.Fee, l.tenantState, l.withdrawn, l.period(now))
}

func (l *Ledger) meta(now types.Timestamp) types.EventMeta {
	return types.EventMeta{LeaseID: l.id, At: now}
}

// tenant pays amount into the ledger
func (l *Ledger) MakePayment(caller types.Principal, amount decimal.Decimal, now types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpMakePayment, caller); err != nil {
		return Receipt{}, err
	}
	if l.tenantState == types.Defaulted {
		return Receipt{}, fmt.Errorf("%w: tenant has defaulted", types.ErrUnauthorized)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return Receipt{}, fmt.Errorf("%w: payment of %s", types.ErrInvalidAmount, amount)
	}
	if l.ended(now) {
		return Receipt{}, fmt.Errorf("%w: lease ended at %d", types.ErrAlreadyEnded, *l.end)
	}

	l.balance = l.balance.Add(amount)

	return Receipt{
		Transferred: decimal.Zero,
		Event:       types.TenantPaid{EventMeta: l.meta(now), Amount: amount},
	}, nil
}

// reports whether caller may open the door at now
func (l *Ledger) CanOpenDoor(caller types.Principal, now types.Timestamp) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return false, err
	}

	role := l.roleOf(caller)
	return role != RoleThirdParty && role == l.doorHolder(now), nil
}

// owner takes the rent accrued so far
// uses the cached tenant state; call UpdateTenantState first when freshness
// matters. A second call within the same period transfers zero.
func (l *Ledger) Withdraw(caller types.Principal, now types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpWithdraw, caller); err != nil {
		return Receipt{}, err
	}

	amount := decimal.Min(l.withdrawable(now), l.balance)

	l.balance = l.balance.Sub(amount)
	l.withdrawn = l.withdrawn.Add(amount)

	receipt := Receipt{Transferred: amount, Recipient: l.terms.Owner}
	if amount.IsPositive() {
		receipt.Event = types.OwnerWithdrew{EventMeta: l.meta(now), Amount: amount}
	}
	return receipt, nil
}

// either party fixes the end date, rounded up to a whole month after start
// one month of notice is required unless the tenant defaulted
func (l *Ledger) NotifyTermination(caller types.Principal, now, proposedEnd types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpNotifyTermination, caller); err != nil {
		return Receipt{}, err
	}
	if now < l.terms.Start {
		return Receipt{}, fmt.Errorf("%w: lease starts at %d", types.ErrNotYetEligible, l.terms.Start)
	}
	if l.end != nil {
		return Receipt{}, fmt.Errorf("%w: termination already notified for %d", types.ErrAlreadyEnded, *l.end)
	}
	if proposedEnd < now {
		return Receipt{}, fmt.Errorf("%w: proposed end %d is in the past", types.ErrAlreadyEnded, proposedEnd)
	}
	if proposedEnd > types.MaxTimestamp {
		return Receipt{}, fmt.Errorf("%w: proposed end %d is out of range", types.ErrInvalidTerms, proposedEnd)
	}
	if proposedEnd-now < types.Month && l.tenantState != types.Defaulted {
		return Receipt{}, fmt.Errorf("%w: one month of notice is required", types.ErrNotYetEligible)
	}

	end := accrual.RoundedEnd(l.terms.Start, proposedEnd)
	l.end = &end

	return Receipt{
		Transferred: decimal.Zero,
		Event:       types.TerminationNotice{EventMeta: l.meta(now), End: end},
	}, nil
}

// closes the ledger for good once the end is reached and the balance drained
func (l *Ledger) Terminate(caller types.Principal, now types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpTerminate, caller); err != nil {
		return Receipt{}, err
	}
	if l.end == nil {
		return Receipt{}, fmt.Errorf("%w: no termination was notified", types.ErrNotYetEligible)
	}
	if now < *l.end {
		return Receipt{}, fmt.Errorf("%w: lease ends at %d", types.ErrNotYetEligible, *l.end)
	}
	if !l.balance.IsZero() {
		return Receipt{}, fmt.Errorf("%w: balance of %s must be drained first", types.ErrNotYetEligible, l.balance)
	}

	l.status = types.StatusTerminated

	return Receipt{
		Transferred: decimal.Zero,
		Event:       types.Terminated{EventMeta: l.meta(now)},
	}, nil
}

// tenant takes back what is left once the owner's share is set aside,
// one full month after the end date
func (l *Ledger) WithdrawRemainder(caller types.Principal, now types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpWithdrawRemainder, caller); err != nil {
		return Receipt{}, err
	}
	if l.end == nil {
		return Receipt{}, fmt.Errorf("%w: no termination was notified", types.ErrNotYetEligible)
	}
	if grace := *l.end + types.Month; now < grace {
		return Receipt{}, fmt.Errorf("%w: remainder is available from %d", types.ErrNotYetEligible, grace)
	}

	remainder := accrual.Remainder(l.balance, l.withdrawable(now))
	if !remainder.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: remainder is %s", types.ErrNothingToTransfer, remainder)
	}
	remainder = decimal.Min(remainder, l.balance)

	l.balance = l.balance.Sub(remainder)

	return Receipt{
		Transferred: remainder,
		Recipient:   l.terms.Tenant,
		Event:       types.RemainderReturned{EventMeta: l.meta(now), Amount: remainder},
	}, nil
}

// recomputes the cached tenant state; callable by anyone
func (l *Ledger) UpdateTenantState(caller types.Principal, now types.Timestamp) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkLive(); err != nil {
		return Receipt{}, err
	}
	if err := l.authorize(OpUpdateTenantState, caller); err != nil {
		return Receipt{}, err
	}

	period := l.period(now)
	tenantBalance := accrual.TenantBalance(l.balance, l.terms.Fee, l.terms.Deposit, l.withdrawn, period)
	state := accrual.TenantState(l.terms.Fee, l.terms.Deposit, period, tenantBalance)

	receipt := Receipt{Transferred: decimal.Zero}
	if state != l.tenantState {
		l.tenantState = state
		receipt.Event = types.TenantStateChanged{
			EventMeta:     l.meta(now),
			State:         state,
			TenantBalance: tenantBalance,
		}
	}
	return receipt, nil
}
