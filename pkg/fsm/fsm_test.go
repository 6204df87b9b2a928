package fsm

import (
	"testing"

	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	now   types.Timestamp = 1_700_000_000
	start                 = now + 15*types.Day
)

var ether = decimal.New(1, 18)

func eth(n int64) decimal.Decimal { return ether.Mul(decimal.NewFromInt(n)) }

func createCmd(owner, tenant types.Principal) types.CreateLeaseCmd {
	return types.CreateLeaseCmd{
		Terms: types.Terms{
			Owner:   owner,
			Tenant:  tenant,
			Start:   start,
			Fee:     eth(1),
			Deposit: eth(2),
		},
		Now: now,
	}
}

func createLease(t *testing.T, fsm *FSM) uint64 {
	t.Helper()
	result, err := fsm.Apply(createCmd("alice", "bob"))
	require.NoError(t, err)
	return result.(CreateLeaseResponse).LeaseID
}

// TestCreateLease tests lease creation
func TestCreateLease(t *testing.T) {
	fsm := NewFSM()

	result, err := fsm.Apply(createCmd("alice", "bob"))
	require.NoError(t, err)

	resp, ok := result.(CreateLeaseResponse)
	require.True(t, ok, "expected CreateLeaseResponse")
	assert.Equal(t, uint64(1), resp.LeaseID)
	assert.Equal(t, resp.LeaseID, resp.Event.LeaseID)
	assert.Equal(t, now, resp.Event.At)

	// Verify lease was stored
	rec, err := fsm.GetLease(resp.LeaseID)
	require.NoError(t, err)
	assert.Equal(t, types.Principal("alice"), rec.Terms.Owner)
	assert.Equal(t, types.Belated, rec.TenantState)
	assert.Equal(t, types.StatusLive, rec.Status)
}

// TestLeaseIDsMonotonic tests that lease IDs strictly increase and are never reused
func TestLeaseIDsMonotonic(t *testing.T) {
	fsm := NewFSM()

	var prev uint64
	for i := 0; i < 10; i++ {
		id := createLease(t, fsm)
		assert.Greater(t, id, prev, "ids must be strictly increasing")
		prev = id
	}

	// a rejected creation does not consume an id
	bad := createCmd("alice", "alice")
	_, err := fsm.Apply(bad)
	assert.ErrorIs(t, err, types.ErrInvalidTerms)

	assert.Equal(t, uint64(11), createLease(t, fsm))
}

// TestOperationOnUnknownLease tests that operations need an existing lease
func TestOperationOnUnknownLease(t *testing.T) {
	fsm := NewFSM()

	_, err := fsm.Apply(types.MakePaymentCmd{
		LeaseID: 999, // doesn't exist
		Caller:  "bob",
		Amount:  eth(1),
		Now:     now,
	})
	assert.ErrorIs(t, err, types.ErrLeaseNotFound)

	_, err = fsm.GetLease(999)
	assert.ErrorIs(t, err, types.ErrLeaseNotFound)

	_, err = fsm.OpenDoor(999, "bob", now)
	assert.ErrorIs(t, err, types.ErrLeaseNotFound)
}

// TestLedgersAreIndependent tests that a command only touches its own ledger
func TestLedgersAreIndependent(t *testing.T) {
	fsm := NewFSM()

	first := createLease(t, fsm)
	result, err := fsm.Apply(createCmd("carol", "dave"))
	require.NoError(t, err)
	second := result.(CreateLeaseResponse).LeaseID

	result, err = fsm.Apply(types.MakePaymentCmd{LeaseID: first, Caller: "bob", Amount: eth(3), Now: now})
	require.NoError(t, err)

	resp, ok := result.(OperationResponse)
	require.True(t, ok, "expected OperationResponse")
	assert.True(t, eth(3).Equal(resp.Record.Balance))
	assert.IsType(t, types.TenantPaid{}, resp.Receipt.Event)

	// bob is a third party on the second lease
	_, err = fsm.Apply(types.MakePaymentCmd{LeaseID: second, Caller: "bob", Amount: eth(3), Now: now})
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	rec, err := fsm.GetLease(second)
	require.NoError(t, err)
	assert.True(t, rec.Balance.IsZero())
}

// TestFullLifecycle drives a lease from payment to termination through the registry
func TestFullLifecycle(t *testing.T) {
	fsm := NewFSM()
	id := createLease(t, fsm)

	steps := []types.Command{
		types.MakePaymentCmd{LeaseID: id, Caller: "bob", Amount: eth(3), Now: start + types.Day},
		types.NotifyTerminationCmd{LeaseID: id, Caller: "bob", ProposedEnd: start + 2*types.Month, Now: start + types.Day},
		types.WithdrawCmd{LeaseID: id, Caller: "alice", Now: start + 2*types.Month},
		types.WithdrawRemainderCmd{LeaseID: id, Caller: "bob", Now: start + 3*types.Month},
		types.UpdateTenantStateCmd{LeaseID: id, Caller: "anyone", Now: start + 3*types.Month},
		types.TerminateCmd{LeaseID: id, Caller: "alice", Now: start + 3*types.Month},
	}
	for _, cmd := range steps {
		_, err := fsm.Apply(cmd)
		require.NoError(t, err, "%s", cmd.Type())
	}

	stats := fsm.Stats()
	assert.Equal(t, 1, stats.Leases)
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, 1, stats.Terminated)

	// terminated records stay queryable
	rec, err := fsm.GetLease(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTerminated, rec.Status)

	_, err = fsm.Apply(types.MakePaymentCmd{LeaseID: id, Caller: "bob", Amount: eth(1), Now: start + 3*types.Month})
	assert.ErrorIs(t, err, types.ErrNotLive)
}

// TestOpenDoor tests the read-only door query
func TestOpenDoor(t *testing.T) {
	fsm := NewFSM()
	id := createLease(t, fsm)

	opened, err := fsm.OpenDoor(id, "alice", now)
	require.NoError(t, err)
	assert.True(t, opened, "owner holds the door before start")

	opened, err = fsm.OpenDoor(id, "bob", start+1)
	require.NoError(t, err)
	assert.True(t, opened, "tenant holds the door after start")
}

// TestLeasesOrdered tests that Leases returns records ordered by ID
func TestLeasesOrdered(t *testing.T) {
	fsm := NewFSM()
	for i := 0; i < 5; i++ {
		createLease(t, fsm)
	}

	records := fsm.Leases()
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.ID)
	}
}
