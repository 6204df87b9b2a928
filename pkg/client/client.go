package client

import (
	"context"
	"fmt"

	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Client struct {
	addr string
	conn *grpc.ClientConn //nil when built over a caller owned connection
	cc   grpc.ClientConnInterface
}

// dials a leasebook node
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{addr: addr, conn: conn, cc: conn}, nil
}

// uses an existing connection, Close leaves it open
func New(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// invokes method and restores domain sentinels so errors.Is works on the result
func call[Req, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	resp, err := api.Invoke[Req, Resp](ctx, c.cc, method, req)
	if err != nil {
		return nil, api.FromStatus(err)
	}
	return resp, nil
}

// opens a ledger and returns a handle acting as the owner
func (c *Client) CreateLease(ctx context.Context, terms types.Terms) (*Lease, *api.LeaseView, error) {
	resp, err := call[api.CreateLeaseRequest, api.CreateLeaseResponse](ctx, c, api.MethodCreateLease, &api.CreateLeaseRequest{
		Owner:   terms.Owner,
		Tenant:  terms.Tenant,
		Start:   terms.Start,
		Fee:     terms.Fee,
		Deposit: terms.Deposit,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create lease: %w", err)
	}

	return c.Lease(resp.LeaseID, terms.Owner), &resp.Lease, nil
}

// handle on an existing lease acting as caller
func (c *Client) Lease(leaseID uint64, caller types.Principal) *Lease {
	return &Lease{client: c, id: leaseID, caller: caller}
}

func (c *Client) MakePayment(ctx context.Context, leaseID uint64, caller types.Principal, amount decimal.Decimal) (*api.OperationResponse, error) {
	resp, err := call[api.MakePaymentRequest, api.OperationResponse](ctx, c, api.MethodMakePayment, &api.MakePaymentRequest{
		LeaseID: leaseID,
		Caller:  caller,
		Amount:  amount,
	})
	if err != nil {
		return nil, fmt.Errorf("make payment: %w", err)
	}
	return resp, nil
}

func (c *Client) NotifyTermination(ctx context.Context, leaseID uint64, caller types.Principal, proposedEnd types.Timestamp) (*api.OperationResponse, error) {
	resp, err := call[api.NotifyTerminationRequest, api.OperationResponse](ctx, c, api.MethodNotifyTermination, &api.NotifyTerminationRequest{
		LeaseID:     leaseID,
		Caller:      caller,
		ProposedEnd: proposedEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("notify termination: %w", err)
	}
	return resp, nil
}

// runs one of the operations that take only a lease and a caller
func (c *Client) leaseCall(ctx context.Context, method string, leaseID uint64, caller types.Principal) (*api.OperationResponse, error) {
	resp, err := call[api.LeaseCallRequest, api.OperationResponse](ctx, c, method, &api.LeaseCallRequest{
		LeaseID: leaseID,
		Caller:  caller,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return resp, nil
}

func (c *Client) Withdraw(ctx context.Context, leaseID uint64, caller types.Principal) (*api.OperationResponse, error) {
	return c.leaseCall(ctx, api.MethodWithdraw, leaseID, caller)
}

func (c *Client) Terminate(ctx context.Context, leaseID uint64, caller types.Principal) (*api.OperationResponse, error) {
	return c.leaseCall(ctx, api.MethodTerminate, leaseID, caller)
}

func (c *Client) WithdrawRemainder(ctx context.Context, leaseID uint64, caller types.Principal) (*api.OperationResponse, error) {
	return c.leaseCall(ctx, api.MethodWithdrawRemainder, leaseID, caller)
}

func (c *Client) UpdateTenantState(ctx context.Context, leaseID uint64, caller types.Principal) (*api.OperationResponse, error) {
	return c.leaseCall(ctx, api.MethodUpdateTenantState, leaseID, caller)
}

func (c *Client) OpenDoor(ctx context.Context, leaseID uint64, caller types.Principal) (bool, error) {
	resp, err := call[api.LeaseCallRequest, api.OpenDoorResponse](ctx, c, api.MethodOpenDoor, &api.LeaseCallRequest{
		LeaseID: leaseID,
		Caller:  caller,
	})
	if err != nil {
		return false, fmt.Errorf("open door: %w", err)
	}
	return resp.Opened, nil
}

func (c *Client) GetLease(ctx context.Context, leaseID uint64) (*api.LeaseView, error) {
	resp, err := call[api.GetLeaseRequest, api.LeaseView](ctx, c, api.MethodGetLease, &api.GetLeaseRequest{LeaseID: leaseID})
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	return resp, nil
}

// every lease when principal is empty, otherwise those it owns or rents
func (c *Client) ListLeases(ctx context.Context, principal types.Principal) ([]api.LeaseView, error) {
	resp, err := call[api.ListLeasesRequest, api.ListLeasesResponse](ctx, c, api.MethodListLeases, &api.ListLeasesRequest{Principal: principal})
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	return resp.Leases, nil
}

func (c *Client) Events(ctx context.Context, leaseID uint64) ([]api.EventView, error) {
	resp, err := call[api.GetEventsRequest, api.GetEventsResponse](ctx, c, api.MethodGetEvents, &api.GetEventsRequest{LeaseID: leaseID})
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return resp.Events, nil
}

func (c *Client) Account(ctx context.Context, principal types.Principal) (*api.AccountView, error) {
	resp, err := call[api.GetAccountRequest, api.AccountView](ctx, c, api.MethodGetAccount, &api.GetAccountRequest{Principal: principal})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return resp, nil
}

// moves a node's manual clock to now
func (c *Client) SetTime(ctx context.Context, now types.Timestamp) (types.Timestamp, error) {
	resp, err := call[api.SetTimeRequest, api.TimeResponse](ctx, c, api.MethodSetTime, &api.SetTimeRequest{Now: now})
	if err != nil {
		return 0, fmt.Errorf("set time: %w", err)
	}
	return resp.Now, nil
}

// moves a node's manual clock forward by d
func (c *Client) Advance(ctx context.Context, d types.Timestamp) (types.Timestamp, error) {
	resp, err := call[api.SetTimeRequest, api.TimeResponse](ctx, c, api.MethodSetTime, &api.SetTimeRequest{Advance: d})
	if err != nil {
		return 0, fmt.Errorf("advance time: %w", err)
	}
	return resp.Now, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	return call[api.GetStatusRequest, api.StatusResponse](ctx, c, api.MethodGetStatus, &api.GetStatusRequest{})
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
