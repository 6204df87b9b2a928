package fsm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/types"
)

// registry of independent lease ledgers
// critical :
// - lease IDs are assigned monotonically and never reused
// - a command only ever touches the ledger it names
// - every derived value is computed from the command's own timestamp
type FSM struct {
	mu sync.RWMutex //guards the map only, each ledger has its own lock

	ledgers map[uint64]*ledger.Ledger // lease ID -> ledger

	nextLeaseID uint64 // next lease ID to assign
}

func NewFSM() *FSM {
	return &FSM{
		ledgers:     make(map[uint64]*ledger.Ledger),
		nextLeaseID: 1, //start lease IDs from 1
	}
}

// applies a command to the FSM and returns the result or error
func (f *FSM) Apply(cmd types.Command) (any, error) {
	switch c := cmd.(type) {
	case types.CreateLeaseCmd:
		return f.applyCreateLease(c)
	case types.MakePaymentCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.MakePayment(c.Caller, c.Amount, c.Now)
		})
	case types.WithdrawCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.Withdraw(c.Caller, c.Now)
		})
	case types.NotifyTerminationCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.NotifyTermination(c.Caller, c.Now, c.ProposedEnd)
		})
	case types.TerminateCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.Terminate(c.Caller, c.Now)
		})
	case types.WithdrawRemainderCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.WithdrawRemainder(c.Caller, c.Now)
		})
	case types.UpdateTenantStateCmd:
		return f.applyOperation(c.LeaseID, func(l *ledger.Ledger) (ledger.Receipt, error) {
			return l.UpdateTenantState(c.Caller, c.Now)
		})
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// returned when a lease is created
type CreateLeaseResponse struct {
	LeaseID uint64
	Record  ledger.Record
	Event   types.LeaseCreated
}

func (f *FSM) applyCreateLease(cmd types.CreateLeaseCmd) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	leaseID := f.nextLeaseID

	l, err := ledger.New(leaseID, cmd.Terms, cmd.Now)
	if err != nil {
		return nil, err
	}

	f.ledgers[leaseID] = l
	f.nextLeaseID++

	return CreateLeaseResponse{
		LeaseID: leaseID,
		Record:  l.Record(),
		Event: types.LeaseCreated{
			EventMeta: types.EventMeta{LeaseID: leaseID, At: cmd.Now},
			Terms:     cmd.Terms,
		},
	}, nil
}

// returned by every operation on an existing ledger
type OperationResponse struct {
	LeaseID uint64
	Receipt ledger.Receipt
	Record  ledger.Record //state after the operation
}

func (f *FSM) applyOperation(leaseID uint64, op func(*ledger.Ledger) (ledger.Receipt, error)) (any, error) {
	l, err := f.ledger(leaseID)
	if err != nil {
		return nil, err
	}

	receipt, err := op(l)
	if err != nil {
		return nil, err
	}

	return OperationResponse{
		LeaseID: leaseID,
		Receipt: receipt,
		Record:  l.Record(),
	}, nil
}

func (f *FSM) ledger(leaseID uint64) (*ledger.Ledger, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	l, exists := f.ledgers[leaseID]
	if !exists {
		return nil, fmt.Errorf("%w: %d", types.ErrLeaseNotFound, leaseID)
	}
	return l, nil
}

// returns the record of a lease by ID
func (f *FSM) GetLease(leaseID uint64) (ledger.Record, error) {
	l, err := f.ledger(leaseID)
	if err != nil {
		return ledger.Record{}, err
	}
	return l.Record(), nil
}

// reports whether caller may open the door of a lease at now
// read-only, nothing is replicated
func (f *FSM) OpenDoor(leaseID uint64, caller types.Principal, now types.Timestamp) (bool, error) {
	l, err := f.ledger(leaseID)
	if err != nil {
		return false, err
	}
	return l.CanOpenDoor(caller, now)
}

// returns every lease record ordered by ID
func (f *FSM) Leases() []ledger.Record {
	f.mu.RLock()
	ids := make([]uint64, 0, len(f.ledgers))
	for id := range f.ledgers {
		ids = append(ids, id)
	}
	ledgers := make([]*ledger.Ledger, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		ledgers = append(ledgers, f.ledgers[id])
	}
	f.mu.RUnlock()

	records := make([]ledger.Record, 0, len(ledgers))
	for _, l := range ledgers {
		records = append(records, l.Record())
	}
	return records
}

// current fsm stats
type Stats struct {
	Leases      int
	Live        int
	Terminated  int
	NextLeaseID uint64
}

func (f *FSM) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := Stats{
		Leases:      len(f.ledgers),
		NextLeaseID: f.nextLeaseID,
	}
	for _, l := range f.ledgers {
		if l.Live() {
			stats.Live++
		} else {
			stats.Terminated++
		}
	}
	return stats
}
