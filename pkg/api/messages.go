// Package api defines the leasebook.v1.LeaseService wire surface: the
// request and response messages, which travel as google.protobuf.Struct,
// and the gRPC service descriptor shared by server and client.
package api

import (
	"github.com/google/uuid"
	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

type CreateLeaseRequest struct {
	Owner   types.Principal `json:"owner"`
	Tenant  types.Principal `json:"tenant"`
	Start   types.Timestamp `json:"start"`
	Fee     decimal.Decimal `json:"fee"`
	Deposit decimal.Decimal `json:"deposit"`
}

type CreateLeaseResponse struct {
	LeaseID uint64    `json:"lease_id"`
	Lease   LeaseView `json:"lease"`
}

type MakePaymentRequest struct {
	LeaseID uint64          `json:"lease_id"`
	Caller  types.Principal `json:"caller"`
	Amount  decimal.Decimal `json:"amount"`
}

type NotifyTerminationRequest struct {
	LeaseID     uint64          `json:"lease_id"`
	Caller      types.Principal `json:"caller"`
	ProposedEnd types.Timestamp `json:"proposed_end"`
}

// request of every operation that only needs a lease and a caller
type LeaseCallRequest struct {
	LeaseID uint64          `json:"lease_id"`
	Caller  types.Principal `json:"caller"`
}

// outcome of a mutating operation
type OperationResponse struct {
	LeaseID     uint64          `json:"lease_id"`
	Transferred decimal.Decimal `json:"transferred"`
	Recipient   types.Principal `json:"recipient,omitempty"`
	Event       *EventView      `json:"event,omitempty"`
	Lease       LeaseView       `json:"lease"`
}

type OpenDoorResponse struct {
	Opened bool `json:"opened"`
}

type GetLeaseRequest struct {
	LeaseID uint64 `json:"lease_id"`
}

// everything a dashboard shows for one lease, evaluated at Now
type LeaseView struct {
	ID          uint64            `json:"id"`
	Owner       types.Principal   `json:"owner"`
	Tenant      types.Principal   `json:"tenant"`
	Start       types.Timestamp   `json:"start"`
	Fee         decimal.Decimal   `json:"fee"`
	Deposit     decimal.Decimal   `json:"deposit"`
	End         *types.Timestamp  `json:"end,omitempty"`
	Withdrawn   decimal.Decimal   `json:"withdrawn"`
	TenantState types.TenantState `json:"tenant_state"`
	Balance     decimal.Decimal   `json:"balance"`
	Status      types.Status      `json:"status"`

	Period        int64           `json:"period"`
	TenantBalance decimal.Decimal `json:"tenant_balance"`
	Withdrawable  decimal.Decimal `json:"withdrawable"`
	Remainder     decimal.Decimal `json:"remainder"`

	Escrow      decimal.Decimal `json:"escrow"` //funds held in the lease's escrow account
	Now         types.Timestamp `json:"now"`
	ManualClock bool            `json:"manual_clock"`
}

func NewLeaseView(rec ledger.Record, now types.Timestamp) LeaseView {
	acc := rec.AccrualAt(now)

	return LeaseView{
		ID:            rec.ID,
		Owner:         rec.Terms.Owner,
		Tenant:        rec.Terms.Tenant,
		Start:         rec.Terms.Start,
		Fee:           rec.Terms.Fee,
		Deposit:       rec.Terms.Deposit,
		End:           rec.End,
		Withdrawn:     rec.Withdrawn,
		TenantState:   rec.TenantState,
		Balance:       rec.Balance,
		Status:        rec.Status,
		Period:        acc.Period,
		TenantBalance: acc.TenantBalance,
		Withdrawable:  acc.Withdrawable,
		Remainder:     acc.Remainder,
		Now:           now,
	}
}

type ListLeasesRequest struct {
	Principal types.Principal `json:"principal,omitempty"` //empty lists every lease
}

type ListLeasesResponse struct {
	Leases []LeaseView `json:"leases"`
}

type GetEventsRequest struct {
	LeaseID uint64 `json:"lease_id"`
}

type GetEventsResponse struct {
	Events []EventView `json:"events"`
}

// flat form of every event kind; fields a kind does not carry are omitted
type EventView struct {
	Kind    types.EventKind `json:"kind"`
	LeaseID uint64          `json:"lease_id"`
	At      types.Timestamp `json:"at"`
	Index   uint64          `json:"index,omitempty"`

	Amount        *decimal.Decimal   `json:"amount,omitempty"`
	End           *types.Timestamp   `json:"end,omitempty"`
	State         *types.TenantState `json:"state,omitempty"`
	TenantBalance *decimal.Decimal   `json:"tenant_balance,omitempty"`
	Terms         *types.Terms       `json:"terms,omitempty"`
}

func NewEventView(index uint64, e types.Event) EventView {
	meta := e.Meta()
	v := EventView{
		Kind:    e.Kind(),
		LeaseID: meta.LeaseID,
		At:      meta.At,
		Index:   index,
	}

	switch ev := e.(type) {
	case types.LeaseCreated:
		v.Terms = &ev.Terms
	case types.TenantPaid:
		v.Amount = &ev.Amount
	case types.OwnerWithdrew:
		v.Amount = &ev.Amount
	case types.RemainderReturned:
		v.Amount = &ev.Amount
	case types.TerminationNotice:
		v.End = &ev.End
	case types.TenantStateChanged:
		v.State = &ev.State
		v.TenantBalance = &ev.TenantBalance
	}
	return v
}

type GetAccountRequest struct {
	Principal types.Principal `json:"principal"`
}

type Transfer struct {
	ID     uuid.UUID       `json:"id"`
	From   types.Principal `json:"from,omitempty"`
	To     types.Principal `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type AccountView struct {
	Principal types.Principal `json:"principal"`
	Balance   decimal.Decimal `json:"balance"`
	History   []Transfer      `json:"history"`
}

// moves a manual clock; Advance is added when set, otherwise Now is used
type SetTimeRequest struct {
	Now     types.Timestamp `json:"now,omitempty"`
	Advance types.Timestamp `json:"advance,omitempty"`
}

type TimeResponse struct {
	Now    types.Timestamp `json:"now"`
	Manual bool            `json:"manual"`
}

type GetStatusRequest struct{}

type StatusResponse struct {
	NodeID        string          `json:"node_id"`
	IsLeader      bool            `json:"is_leader"`
	LeaderAddress string          `json:"leader_address"`
	ClusterSize   int             `json:"cluster_size"`
	State         string          `json:"state"`
	AppliedIndex  uint64          `json:"applied_index"`
	Leases        int             `json:"leases"`
	Live          int             `json:"live"`
	Terminated    int             `json:"terminated"`
	Now           types.Timestamp `json:"now"`
	ManualClock   bool            `json:"manual_clock"`
}
