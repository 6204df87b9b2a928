package ledger

import (
	"fmt"

	"github.com/pixperk/leasebook/pkg/accrual"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

// point-in-time copy of a ledger, used for snapshots and presentation
type Record struct {
	ID          uint64            `json:"id"`
	Terms       types.Terms       `json:"terms"`
	End         *types.Timestamp  `json:"end,omitempty"`
	Withdrawn   decimal.Decimal   `json:"withdrawn"`
	TenantState types.TenantState `json:"tenant_state"`
	Balance     decimal.Decimal   `json:"balance"`
	Status      types.Status      `json:"status"`
}

// values derived from a record at a given time
type Accrual struct {
	Period        int64           `json:"period"`
	TenantBalance decimal.Decimal `json:"tenant_balance"`
	Withdrawable  decimal.Decimal `json:"withdrawable"`
	Remainder     decimal.Decimal `json:"remainder"`
}

func (l *Ledger) Record() Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{
		ID:          l.id,
		Terms:       l.terms,
		Withdrawn:   l.withdrawn,
		TenantState: l.tenantState,
		Balance:     l.balance,
		Status:      l.status,
	}
	if l.end != nil {
		end := *l.end
		r.End = &end
	}
	return r
}

// rebuilds a ledger from a snapshot record
func FromRecord(r Record) (*Ledger, error) {
	if r.Balance.IsNegative() || r.Withdrawn.IsNegative() {
		return nil, fmt.Errorf("lease %d: negative balance or withdrawn in record", r.ID)
	}
	if r.Terms.Owner == r.Terms.Tenant || !r.Terms.Fee.IsPositive() {
		return nil, fmt.Errorf("%w: lease %d", types.ErrInvalidTerms, r.ID)
	}

	l := &Ledger{
		id:          r.ID,
		terms:       r.Terms,
		withdrawn:   r.Withdrawn,
		tenantState: r.TenantState,
		balance:     r.Balance,
		status:      r.Status,
	}
	if r.End != nil {
		end := *r.End
		l.end = &end
	}
	return l, nil
}

// derived values at now, computed with the cached tenant state
func (r Record) AccrualAt(now types.Timestamp) Accrual {
	period := accrual.BillingPeriod(now, r.Terms.Start, r.End)
	withdrawable := accrual.Withdrawable(r.Balance, r.Terms.Fee, r.TenantState, r.Withdrawn, period)

	return Accrual{
		Period:        period,
		TenantBalance: accrual.TenantBalance(r.Balance, r.Terms.Fee, r.Terms.Deposit, r.Withdrawn, period),
		Withdrawable:  withdrawable,
		Remainder:     accrual.Remainder(r.Balance, withdrawable),
	}
}

func (l *Ledger) ID() uint64 { return l.id }

// terms never change, no lock needed
func (l *Ledger) Terms() types.Terms { return l.terms }

func (l *Ledger) End() (types.Timestamp, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.end == nil {
		return 0, false
	}
	return *l.end, true
}

func (l *Ledger) Withdrawn() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withdrawn
}

func (l *Ledger) TenantState() types.TenantState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tenantState
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Live() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == types.StatusLive
}
