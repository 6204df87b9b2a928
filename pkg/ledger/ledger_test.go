package ledger

import (
	"math"
	"testing"

	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner  types.Principal = "owner"
	tenant types.Principal = "tenant"
	robber types.Principal = "robber"

	now   types.Timestamp = 1_700_000_000
	day                   = types.Day
	month                 = types.Month
	start                 = now + 15*day
)

var ether = decimal.New(1, 18)

func eth(n int64) decimal.Decimal { return ether.Mul(decimal.NewFromInt(n)) }

func testTerms() types.Terms {
	return types.Terms{
		Owner:   owner,
		Tenant:  tenant,
		Start:   start,
		Fee:     eth(1),
		Deposit: eth(2),
	}
}

func newLease(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(1, testTerms(), now)
	require.NoError(t, err)
	return l
}

func pay(t *testing.T, l *Ledger, amount decimal.Decimal, at types.Timestamp) {
	t.Helper()
	_, err := l.MakePayment(tenant, amount, at)
	require.NoError(t, err)
}

func assertAmount(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestNewInitializesCorrectly(t *testing.T) {
	l := newLease(t)

	rec := l.Record()
	assert.Equal(t, uint64(1), rec.ID)
	assert.Equal(t, testTerms(), rec.Terms)
	assert.Equal(t, types.Belated, rec.TenantState)
	assert.True(t, rec.Withdrawn.IsZero())
	assert.True(t, rec.Balance.IsZero())
	assert.Nil(t, rec.End)
	assert.Equal(t, types.StatusLive, rec.Status)

	_, ended := l.End()
	assert.False(t, ended)
	assert.True(t, l.Live())
}

func TestNewRejectsInvalidTerms(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*types.Terms)
	}{
		{"owner is their own tenant", func(tr *types.Terms) { tr.Tenant = owner }},
		{"start date in the past", func(tr *types.Terms) { tr.Start = now - 15*day }},
		{"start date is creation time", func(tr *types.Terms) { tr.Start = now }},
		{"zero fee", func(tr *types.Terms) { tr.Fee = decimal.Zero }},
		{"deposit smaller than twice the fee", func(tr *types.Terms) { tr.Deposit = decimal.RequireFromString("1.9").Mul(ether) }},
		{"missing tenant", func(tr *types.Terms) { tr.Tenant = "" }},
		{"start beyond the representable range", func(tr *types.Terms) { tr.Start = math.MaxInt64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := testTerms()
			tt.modify(&terms)

			_, err := New(1, terms, now)
			assert.ErrorIs(t, err, types.ErrInvalidTerms)
		})
	}
}

func TestCreateThenUpdateIsBelated(t *testing.T) {
	l := newLease(t)

	receipt, err := l.UpdateTenantState(robber, now)
	require.NoError(t, err)
	assert.Nil(t, receipt.Event, "state did not change")
	assert.Equal(t, types.Belated, l.TenantState())
}

func TestMakePayment(t *testing.T) {
	t.Run("allows payments from the tenant", func(t *testing.T) {
		l := newLease(t)

		receipt, err := l.MakePayment(tenant, eth(1), now)
		require.NoError(t, err)
		assertAmount(t, eth(1), l.Balance())

		paid, ok := receipt.Event.(types.TenantPaid)
		require.True(t, ok, "expected TenantPaid, got %T", receipt.Event)
		assertAmount(t, eth(1), paid.Amount)
		assert.Equal(t, uint64(1), paid.LeaseID)
		assert.Equal(t, now, paid.At)
	})

	t.Run("disallows payments from a third party", func(t *testing.T) {
		l := newLease(t)
		_, err := l.MakePayment(robber, eth(1), now)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
		assert.True(t, l.Balance().IsZero())
	})

	t.Run("disallows payments from the owner", func(t *testing.T) {
		l := newLease(t)
		_, err := l.MakePayment(owner, eth(1), now)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("disallows payments if the tenant defaulted", func(t *testing.T) {
		l := newLease(t)
		l.tenantState = types.Defaulted
		_, err := l.MakePayment(tenant, eth(1), now)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("allows payments if the end date is in the future", func(t *testing.T) {
		l := newLease(t)
		end := now + 2*month
		l.end = &end
		pay(t, l, eth(1), now)
		assertAmount(t, eth(1), l.Balance())
	})

	t.Run("disallows payments once the end date is reached", func(t *testing.T) {
		l := newLease(t)
		end := now + 2*month
		l.end = &end

		_, err := l.MakePayment(tenant, eth(1), end)
		assert.ErrorIs(t, err, types.ErrAlreadyEnded)
		_, err = l.MakePayment(tenant, eth(1), now+3*month)
		assert.ErrorIs(t, err, types.ErrAlreadyEnded)
	})

	t.Run("disallows zero and negative amounts", func(t *testing.T) {
		l := newLease(t)
		_, err := l.MakePayment(tenant, decimal.Zero, now)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
		_, err = l.MakePayment(tenant, eth(-1), now)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
		_, err = l.MakePayment(tenant, decimal.RequireFromString("0.5"), now)
		assert.ErrorIs(t, err, types.ErrInvalidAmount)
	})
}

func TestCanOpenDoor(t *testing.T) {
	tests := []struct {
		name   string
		at     types.Timestamp
		setup  func(*Ledger)
		holder types.Principal
	}{
		{"start date in the future, only owner", now, nil, owner},
		{"start date in the past, only tenant", now + month, nil, tenant},
		{"tenant defaulted, only owner", now + month, func(l *Ledger) { l.tenantState = types.Defaulted }, owner},
		{"end date in the future, only tenant", now + month, func(l *Ledger) { end := now + 12*month; l.end = &end }, tenant},
		{"end date in the past, only owner", now + 8*month, func(l *Ledger) { end := now + 7*month; l.end = &end }, owner},
		{"defaulted before start, only owner", now, func(l *Ledger) { l.tenantState = types.Defaulted }, owner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLease(t)
			if tt.setup != nil {
				tt.setup(l)
			}

			for _, caller := range []types.Principal{owner, tenant, robber} {
				opened, err := l.CanOpenDoor(caller, tt.at)
				require.NoError(t, err)
				assert.Equal(t, caller == tt.holder, opened, "caller %s", caller)
			}
		})
	}
}

func TestWithdraw(t *testing.T) {
	t.Run("tenant cannot withdraw", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(3), now)
		_, err := l.Withdraw(tenant, now+month)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
		assertAmount(t, eth(3), l.Balance())
	})

	t.Run("nothing to withdraw before the start date", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(3), now)
		receipt, err := l.Withdraw(owner, now)
		require.NoError(t, err)
		assert.True(t, receipt.Transferred.IsZero())
		assert.Nil(t, receipt.Event)
	})

	t.Run("owner withdraws the first rent", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(3), now+month)
		receipt, err := l.Withdraw(owner, now+month)
		require.NoError(t, err)
		assertAmount(t, eth(1), receipt.Transferred)
		assert.Equal(t, owner, receipt.Recipient)

		withdrew, ok := receipt.Event.(types.OwnerWithdrew)
		require.True(t, ok)
		assertAmount(t, eth(1), withdrew.Amount)
	})

	t.Run("rent paid in advance stays in the ledger", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(4), now+month)
		receipt, err := l.Withdraw(owner, now+month)
		require.NoError(t, err)
		assertAmount(t, eth(1), receipt.Transferred)
		assertAmount(t, eth(3), l.Balance())
	})

	t.Run("second withdrawal in the same month transfers zero", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(4), now+month)
		_, err := l.Withdraw(owner, now+month)
		require.NoError(t, err)

		receipt, err := l.Withdraw(owner, now+month+day)
		require.NoError(t, err)
		assert.True(t, receipt.Transferred.IsZero())
		assertAmount(t, eth(1), l.Withdrawn())
	})

	t.Run("belated tenant pays from the deposit", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(3), now+2*month)
		receipt, err := l.Withdraw(owner, now+2*month)
		require.NoError(t, err)
		assertAmount(t, eth(2), receipt.Transferred)
	})

	t.Run("accrued rent beyond the balance is clamped", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(3), now+3*month)
		receipt, err := l.Withdraw(owner, now+6*month)
		require.NoError(t, err)
		assertAmount(t, eth(3), receipt.Transferred)
		assert.True(t, l.Balance().IsZero())
	})

	t.Run("defaulted tenant loses the whole balance", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(2), now+month)
		_, err := l.UpdateTenantState(robber, now+3*month)
		require.NoError(t, err)
		require.Equal(t, types.Defaulted, l.TenantState())

		receipt, err := l.Withdraw(owner, now+3*month)
		require.NoError(t, err)
		assertAmount(t, eth(2), receipt.Transferred)
		assert.True(t, l.Balance().IsZero())
	})

	t.Run("uses the cached tenant state", func(t *testing.T) {
		l := newLease(t)
		pay(t, l, eth(5), now+month)
		l.tenantState = types.Defaulted

		receipt, err := l.Withdraw(owner, now+month)
		require.NoError(t, err)
		// stale defaulted state releases everything
		assertAmount(t, eth(5), receipt.Transferred)
	})
}

func TestNotifyTermination(t *testing.T) {
	t.Run("cannot be called before the start date", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(owner, now, now+3*month)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)
	})

	for _, caller := range []types.Principal{owner, tenant} {
		t.Run(string(caller)+" can call it", func(t *testing.T) {
			l := newLease(t)
			receipt, err := l.NotifyTermination(caller, now+month, now+3*month)
			require.NoError(t, err)

			end, ok := l.End()
			require.True(t, ok)
			assert.Equal(t, start+3*month, end)

			notice, ok := receipt.Event.(types.TerminationNotice)
			require.True(t, ok)
			assert.Equal(t, end, notice.End)
		})
	}

	t.Run("third party cannot call it", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(robber, now+month, now+3*month)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
	})

	t.Run("cannot be called twice", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(tenant, now+month, now+3*month)
		require.NoError(t, err)
		first, _ := l.End()

		_, err = l.NotifyTermination(owner, now+month, now+4*month)
		assert.ErrorIs(t, err, types.ErrAlreadyEnded)

		second, _ := l.End()
		assert.Equal(t, first, second, "end is write-once")
	})

	t.Run("requires a month of notice", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(owner, now+month, now+month+month/2)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)

		_, ended := l.End()
		assert.False(t, ended)
	})

	t.Run("unless the tenant defaulted", func(t *testing.T) {
		l := newLease(t)
		l.tenantState = types.Defaulted

		_, err := l.NotifyTermination(owner, now+month, now+month+month/2)
		require.NoError(t, err)

		end, _ := l.End()
		assert.Equal(t, start+month, end)
	})

	t.Run("defaulted tenant can be terminated immediately", func(t *testing.T) {
		l := newLease(t)
		l.tenantState = types.Defaulted

		at := start + 10*day
		_, err := l.NotifyTermination(owner, at, at)
		require.NoError(t, err)

		end, _ := l.End()
		assert.Equal(t, start+month, end)
	})

	t.Run("proposed end in the past is rejected", func(t *testing.T) {
		l := newLease(t)
		l.tenantState = types.Defaulted

		_, err := l.NotifyTermination(owner, start+10*day, start+5*day)
		assert.ErrorIs(t, err, types.ErrAlreadyEnded)
	})

	t.Run("proposed end near the end of time is rejected", func(t *testing.T) {
		l := newLease(t)
		_, err := l.MakePayment(tenant, eth(3), start)
		require.NoError(t, err)

		for _, proposed := range []types.Timestamp{math.MaxInt64, math.MaxInt64 - month, types.MaxTimestamp + 1} {
			_, err = l.NotifyTermination(tenant, start+day, proposed)
			assert.ErrorIs(t, err, types.ErrInvalidTerms, "proposed %d", proposed)
		}

		_, ended := l.End()
		assert.False(t, ended)

		_, err = l.WithdrawRemainder(tenant, start+2*day)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)
		assert.True(t, eth(3).Equal(l.Balance()))
	})

	t.Run("latest accepted end stays representable", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(tenant, start+day, types.MaxTimestamp)
		require.NoError(t, err)

		end, _ := l.End()
		assert.GreaterOrEqual(t, end, types.MaxTimestamp)
		assert.Zero(t, (end-start)%month)
		assert.Greater(t, end+month, end, "grace must not wrap")

		_, err = l.WithdrawRemainder(tenant, start+2*day)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)
	})
}

func TestTerminate(t *testing.T) {
	t.Run("requires a notified end", func(t *testing.T) {
		l := newLease(t)
		_, err := l.Terminate(owner, now+12*month)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)
	})

	t.Run("requires the end to be reached", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(owner, start, start+2*month)
		require.NoError(t, err)

		_, err = l.Terminate(owner, start+2*month-1)
		assert.ErrorIs(t, err, types.ErrNotYetEligible)
	})

	t.Run("third party cannot terminate", func(t *testing.T) {
		l := newLease(t)
		_, err := l.NotifyTermination(owner, start, start+2*month)
		require.NoError(t, err)

		_, err = l.Terminate(robber, start+2*month)
		assert.ErrorIs(t, err, types.ErrUnauthorized)
		assert.True(t, l.Live())
	})
}

func TestUpdateTenantState(t *testing.T) {
	l := newLease(t)
	pay(t, l, eth(3), now)

	// deposit plus the first month covered
	receipt, err := l.UpdateTenantState(robber, start+day)
	require.NoError(t, err)
	changed, ok := receipt.Event.(types.TenantStateChanged)
	require.True(t, ok)
	assert.Equal(t, types.OnTime, changed.State)
	assertAmount(t, decimal.Zero, changed.TenantBalance)

	// unchanged state emits nothing
	receipt, err = l.UpdateTenantState(owner, start+2*day)
	require.NoError(t, err)
	assert.Nil(t, receipt.Event)

	// second month unpaid, deposit still covers another
	receipt, err = l.UpdateTenantState(tenant, start+month+day)
	require.NoError(t, err)
	changed = receipt.Event.(types.TenantStateChanged)
	assert.Equal(t, types.Belated, changed.State)
	assertAmount(t, eth(-1), changed.TenantBalance)

	// third month unpaid
	receipt, err = l.UpdateTenantState(robber, start+2*month+day)
	require.NoError(t, err)
	changed = receipt.Event.(types.TenantStateChanged)
	assert.Equal(t, types.Defaulted, changed.State)
	assertAmount(t, eth(-2), changed.TenantBalance)
}

func TestRecordRoundTrip(t *testing.T) {
	l := newLease(t)
	pay(t, l, eth(4), start+day)
	_, err := l.NotifyTermination(tenant, start+day, start+2*month)
	require.NoError(t, err)
	_, err = l.Withdraw(owner, start+day)
	require.NoError(t, err)

	restored, err := FromRecord(l.Record())
	require.NoError(t, err)
	assert.Equal(t, l.Record(), restored.Record())

	// restored ledger keeps working
	_, err = restored.NotifyTermination(owner, start+2*day, start+5*month)
	assert.ErrorIs(t, err, types.ErrAlreadyEnded)
}

func TestAccrualAt(t *testing.T) {
	l := newLease(t)
	pay(t, l, eth(5), start+day)

	acc := l.Record().AccrualAt(start + month + day)
	assert.Equal(t, int64(2), acc.Period)
	assertAmount(t, eth(1), acc.TenantBalance)
	assertAmount(t, eth(2), acc.Withdrawable)
	assertAmount(t, eth(3), acc.Remainder)
}
