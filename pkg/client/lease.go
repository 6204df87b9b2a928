package client

import (
	"context"

	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

// a lease seen by one principal; every call is made as that caller
type Lease struct {
	client *Client
	id     uint64
	caller types.Principal
}

func (l *Lease) ID() uint64 {
	return l.id
}

func (l *Lease) Caller() types.Principal {
	return l.caller
}

// same lease, acting as someone else
func (l *Lease) As(caller types.Principal) *Lease {
	return l.client.Lease(l.id, caller)
}

func (l *Lease) Pay(ctx context.Context, amount decimal.Decimal) (*api.OperationResponse, error) {
	return l.client.MakePayment(ctx, l.id, l.caller, amount)
}

func (l *Lease) OpenDoor(ctx context.Context) (bool, error) {
	return l.client.OpenDoor(ctx, l.id, l.caller)
}

func (l *Lease) Withdraw(ctx context.Context) (*api.OperationResponse, error) {
	return l.client.Withdraw(ctx, l.id, l.caller)
}

func (l *Lease) NotifyTermination(ctx context.Context, proposedEnd types.Timestamp) (*api.OperationResponse, error) {
	return l.client.NotifyTermination(ctx, l.id, l.caller, proposedEnd)
}

func (l *Lease) Terminate(ctx context.Context) (*api.OperationResponse, error) {
	return l.client.Terminate(ctx, l.id, l.caller)
}

func (l *Lease) WithdrawRemainder(ctx context.Context) (*api.OperationResponse, error) {
	return l.client.WithdrawRemainder(ctx, l.id, l.caller)
}

func (l *Lease) UpdateTenantState(ctx context.Context) (*api.OperationResponse, error) {
	return l.client.UpdateTenantState(ctx, l.id, l.caller)
}

func (l *Lease) Get(ctx context.Context) (*api.LeaseView, error) {
	return l.client.GetLease(ctx, l.id)
}

func (l *Lease) Events(ctx context.Context) ([]api.EventView, error) {
	return l.client.Events(ctx, l.id)
}
