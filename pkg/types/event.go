package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventLeaseCreated       EventKind = "LeaseCreated"
	EventTenantPaid         EventKind = "TenantPaid"
	EventOwnerWithdrew      EventKind = "OwnerWithdrew"
	EventTerminationNotice  EventKind = "TerminationNotice"
	EventTerminated         EventKind = "Terminated"
	EventRemainderReturned  EventKind = "RemainderReturned"
	EventTenantStateChanged EventKind = "TenantStateChanged"
)

// emitted by a ledger after a successful state change
type Event interface {
	Kind() EventKind
	Meta() EventMeta
}

// fields shared by every event
type EventMeta struct {
	LeaseID uint64    `json:"lease_id"`
	At      Timestamp `json:"at"`
}

func (m EventMeta) Meta() EventMeta { return m }

type LeaseCreated struct {
	EventMeta
	Terms Terms `json:"terms"`
}

func (LeaseCreated) Kind() EventKind { return EventLeaseCreated }

type TenantPaid struct {
	EventMeta
	Amount decimal.Decimal `json:"amount"`
}

func (TenantPaid) Kind() EventKind { return EventTenantPaid }

type OwnerWithdrew struct {
	EventMeta
	Amount decimal.Decimal `json:"amount"`
}

func (OwnerWithdrew) Kind() EventKind { return EventOwnerWithdrew }

type TerminationNotice struct {
	EventMeta
	End Timestamp `json:"end"`
}

func (TerminationNotice) Kind() EventKind { return EventTerminationNotice }

type Terminated struct {
	EventMeta
}

func (Terminated) Kind() EventKind { return EventTerminated }

type RemainderReturned struct {
	EventMeta
	Amount decimal.Decimal `json:"amount"`
}

func (RemainderReturned) Kind() EventKind { return EventRemainderReturned }

type TenantStateChanged struct {
	EventMeta
	State         TenantState     `json:"state"`
	TenantBalance decimal.Decimal `json:"tenant_balance"`
}

func (TenantStateChanged) Kind() EventKind { return EventTenantStateChanged }

// rebuilds a concrete event of the given kind; decode fills the pointer it is handed
func DecodeEvent(kind EventKind, decode func(v any) error) (Event, error) {
	switch kind {
	case EventLeaseCreated:
		var e LeaseCreated
		return decodeInto(&e, decode)
	case EventTenantPaid:
		var e TenantPaid
		return decodeInto(&e, decode)
	case EventOwnerWithdrew:
		var e OwnerWithdrew
		return decodeInto(&e, decode)
	case EventTerminationNotice:
		var e TerminationNotice
		return decodeInto(&e, decode)
	case EventTerminated:
		var e Terminated
		return decodeInto(&e, decode)
	case EventRemainderReturned:
		var e RemainderReturned
		return decodeInto(&e, decode)
	case EventTenantStateChanged:
		var e TenantStateChanged
		return decodeInto(&e, decode)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func decodeInto[T Event](e *T, decode func(v any) error) (Event, error) {
	if err := decode(e); err != nil {
		return nil, err
	}
	return *e, nil
}
