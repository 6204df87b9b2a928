package server

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/clock"
	"github.com/pixperk/leasebook/pkg/fsm"
	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/metrics"
	"github.com/pixperk/leasebook/pkg/raft"
	"github.com/pixperk/leasebook/pkg/storage"
	"github.com/pixperk/leasebook/pkg/transfer"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// per-lease event history
type EventStore interface {
	Events(leaseID uint64) ([]storage.Entry, error)
}

// index of leases by principal
type LeaseIndex interface {
	ListByPrincipal(ctx context.Context, p types.Principal) ([]ledger.Record, error)
}

type Options struct {
	Node     *raft.Node
	Clock    clock.Clock
	Accounts *transfer.Accounts
	Events   EventStore
	Index    LeaseIndex
	Logger   hclog.Logger
}

type Server struct {
	node     *raft.Node
	clock    clock.Clock
	accounts *transfer.Accounts
	events   EventStore
	index    LeaseIndex
	logger   hclog.Logger
}

var _ api.LeaseServiceServer = (*Server)(nil)

// wraps the raft node into a gRPC server
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.NewMonotonic()
	}
	if opts.Accounts == nil {
		opts.Accounts = transfer.NewAccounts()
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	return &Server{
		node:     opts.Node,
		clock:    opts.Clock,
		accounts: opts.Accounts,
		events:   opts.Events,
		index:    opts.Index,
		logger:   opts.Logger,
	}
}

func (s *Server) requireLeader() error {
	if !s.node.IsLeader() {
		return notLeaderError(s.node.GetLeader())
	}
	return nil
}

func (s *Server) manual() (*clock.Manual, bool) {
	m, ok := s.clock.(*clock.Manual)
	return m, ok
}

func (s *Server) view(rec ledger.Record, now types.Timestamp) api.LeaseView {
	v := api.NewLeaseView(rec, now)
	v.Escrow = s.accounts.Balance(transfer.EscrowAccount(rec.ID))
	_, v.ManualClock = s.manual()
	return v
}

func observe(op types.CommandType, began time.Time, err error) {
	metrics.OperationDuration.WithLabelValues(op.String()).Observe(time.Since(began).Seconds())
	metrics.OperationTotal.WithLabelValues(op.String(), resultLabel(err)).Inc()
}

func (s *Server) CreateLease(ctx context.Context, req *api.CreateLeaseRequest) (resp *api.CreateLeaseResponse, err error) {
	defer func(began time.Time) { observe(types.CommandTypeCreateLease, began, err) }(time.Now())

	if err := s.requireLeader(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result, err := s.node.Apply(types.CreateLeaseCmd{
		Terms: types.Terms{
			Owner:   req.Owner,
			Tenant:  req.Tenant,
			Start:   req.Start,
			Fee:     req.Fee,
			Deposit: req.Deposit,
		},
		Now: now,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}

	created := result.(fsm.CreateLeaseResponse)
	s.logger.Info("lease created", "lease", created.LeaseID, "owner", req.Owner, "tenant", req.Tenant, "start", req.Start)

	return &api.CreateLeaseResponse{
		LeaseID: created.LeaseID,
		Lease:   s.view(created.Record, now),
	}, nil
}

// tenant funds move into escrow before the command is replicated and are
// handed back if the ledger rejects the payment or it never reached the log
func (s *Server) MakePayment(ctx context.Context, req *api.MakePaymentRequest) (resp *api.OperationResponse, err error) {
	defer func(began time.Time) { observe(types.CommandTypeMakePayment, began, err) }(time.Now())

	if err := s.requireLeader(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return nil, toGRPCError(types.ErrInvalidAmount)
	}
	if _, err := s.node.FSM().GetLease(req.LeaseID); err != nil {
		return nil, toGRPCError(err)
	}

	escrow := transfer.EscrowAccount(req.LeaseID)
	if _, err := s.accounts.Transfer(req.Caller, escrow, req.Amount); err != nil {
		return nil, toGRPCError(err)
	}

	now := s.clock.Now()
	result, err := s.node.Apply(types.MakePaymentCmd{
		LeaseID: req.LeaseID,
		Caller:  req.Caller,
		Amount:  req.Amount,
		Now:     now,
	})
	if err != nil {
		if !refundable(err) {
			// the entry may still commit under the next leader
			s.logger.Error("payment outcome unknown, escrow kept", "lease", req.LeaseID, "caller", req.Caller, "amount", req.Amount, "error", err)
			return nil, toGRPCError(err)
		}
		if _, rerr := s.accounts.Transfer(escrow, req.Caller, req.Amount); rerr != nil {
			s.logger.Error("payment refund failed", "lease", req.LeaseID, "caller", req.Caller, "amount", req.Amount, "error", rerr)
		}
		return nil, toGRPCError(err)
	}

	metrics.FundsTransferredTotal.WithLabelValues(types.CommandTypeMakePayment.String()).Add(req.Amount.InexactFloat64())
	return s.operationResponse(result, now), nil
}

func (s *Server) OpenDoor(ctx context.Context, req *api.LeaseCallRequest) (*api.OpenDoorResponse, error) {
	opened, err := s.node.FSM().OpenDoor(req.LeaseID, req.Caller, s.clock.Now())
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &api.OpenDoorResponse{Opened: opened}, nil
}

func (s *Server) Withdraw(ctx context.Context, req *api.LeaseCallRequest) (*api.OperationResponse, error) {
	return s.apply(types.CommandTypeWithdraw, func(now types.Timestamp) types.Command {
		return types.WithdrawCmd{LeaseID: req.LeaseID, Caller: req.Caller, Now: now}
	})
}

func (s *Server) NotifyTermination(ctx context.Context, req *api.NotifyTerminationRequest) (*api.OperationResponse, error) {
	return s.apply(types.CommandTypeNotifyTermination, func(now types.Timestamp) types.Command {
		return types.NotifyTerminationCmd{LeaseID: req.LeaseID, Caller: req.Caller, ProposedEnd: req.ProposedEnd, Now: now}
	})
}

func (s *Server) Terminate(ctx context.Context, req *api.LeaseCallRequest) (*api.OperationResponse, error) {
	return s.apply(types.CommandTypeTerminate, func(now types.Timestamp) types.Command {
		return types.TerminateCmd{LeaseID: req.LeaseID, Caller: req.Caller, Now: now}
	})
}

func (s *Server) WithdrawRemainder(ctx context.Context, req *api.LeaseCallRequest) (*api.OperationResponse, error) {
	return s.apply(types.CommandTypeWithdrawRemainder, func(now types.Timestamp) types.Command {
		return types.WithdrawRemainderCmd{LeaseID: req.LeaseID, Caller: req.Caller, Now: now}
	})
}

func (s *Server) UpdateTenantState(ctx context.Context, req *api.LeaseCallRequest) (*api.OperationResponse, error) {
	return s.apply(types.CommandTypeUpdateTenantState, func(now types.Timestamp) types.Command {
		return types.UpdateTenantStateCmd{LeaseID: req.LeaseID, Caller: req.Caller, Now: now}
	})
}

// replicates a command built at the current engine time and settles any
// funds the ledger released
func (s *Server) apply(op types.CommandType, build func(now types.Timestamp) types.Command) (resp *api.OperationResponse, err error) {
	defer func(began time.Time) { observe(op, began, err) }(time.Now())

	if err := s.requireLeader(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result, err := s.node.Apply(build(now))
	if err != nil {
		return nil, toGRPCError(err)
	}

	out := result.(fsm.OperationResponse)
	if amount := out.Receipt.Transferred; amount.IsPositive() {
		s.settle(op, out.LeaseID, out.Receipt.Recipient, amount)
	}
	if changed, ok := out.Receipt.Event.(types.TenantStateChanged); ok {
		metrics.TenantStateChangesTotal.WithLabelValues(changed.State.String()).Inc()
		s.logger.Info("tenant state changed", "lease", out.LeaseID, "state", changed.State, "tenant_balance", changed.TenantBalance)
	}

	return s.operationResponse(result, now), nil
}

// pays out of escrow what the ledger already debited
func (s *Server) settle(op types.CommandType, leaseID uint64, to types.Principal, amount decimal.Decimal) {
	escrow := transfer.EscrowAccount(leaseID)
	if _, err := s.accounts.Transfer(escrow, to, amount); err != nil {
		// escrow holds at least the ledger balance, so this means the accounts
		// were reset while the ledger was not
		s.logger.Error("escrow payout failed", "lease", leaseID, "to", to, "amount", amount, "error", err)
		return
	}
	metrics.FundsTransferredTotal.WithLabelValues(op.String()).Add(amount.InexactFloat64())
}

func (s *Server) operationResponse(result any, now types.Timestamp) *api.OperationResponse {
	out := result.(fsm.OperationResponse)

	resp := &api.OperationResponse{
		LeaseID:     out.LeaseID,
		Transferred: out.Receipt.Transferred,
		Recipient:   out.Receipt.Recipient,
		Lease:       s.view(out.Record, now),
	}
	if out.Receipt.Event != nil {
		ev := api.NewEventView(0, out.Receipt.Event)
		resp.Event = &ev
	}
	return resp
}

// the dashboard read: every field plus escrow balance and engine time
func (s *Server) GetLease(ctx context.Context, req *api.GetLeaseRequest) (*api.LeaseView, error) {
	rec, err := s.node.FSM().GetLease(req.LeaseID)
	if err != nil {
		return nil, toGRPCError(err)
	}

	v := s.view(rec, s.clock.Now())
	return &v, nil
}

func (s *Server) ListLeases(ctx context.Context, req *api.ListLeasesRequest) (*api.ListLeasesResponse, error) {
	var (
		records []ledger.Record
		err     error
	)
	switch {
	case req.Principal == "":
		records = s.node.FSM().Leases()
	case s.index != nil:
		records, err = s.index.ListByPrincipal(ctx, req.Principal)
	default:
		for _, rec := range s.node.FSM().Leases() {
			if rec.Terms.Owner == req.Principal || rec.Terms.Tenant == req.Principal {
				records = append(records, rec)
			}
		}
	}
	if err != nil {
		return nil, toGRPCError(err)
	}

	now := s.clock.Now()
	resp := &api.ListLeasesResponse{Leases: make([]api.LeaseView, 0, len(records))}
	for _, rec := range records {
		resp.Leases = append(resp.Leases, s.view(rec, now))
	}
	return resp, nil
}

func (s *Server) GetEvents(ctx context.Context, req *api.GetEventsRequest) (*api.GetEventsResponse, error) {
	if s.events == nil {
		return nil, status.Error(codes.Unimplemented, "event journal is disabled")
	}
	if _, err := s.node.FSM().GetLease(req.LeaseID); err != nil {
		return nil, toGRPCError(err)
	}

	entries, err := s.events.Events(req.LeaseID)
	if err != nil {
		return nil, toGRPCError(err)
	}

	resp := &api.GetEventsResponse{Events: make([]api.EventView, 0, len(entries))}
	for _, e := range entries {
		resp.Events = append(resp.Events, api.NewEventView(e.Index, e.Event))
	}
	return resp, nil
}

func (s *Server) GetAccount(ctx context.Context, req *api.GetAccountRequest) (*api.AccountView, error) {
	if req.Principal == "" {
		return nil, status.Error(codes.InvalidArgument, "principal required")
	}

	history := s.accounts.History(req.Principal)
	view := &api.AccountView{
		Principal: req.Principal,
		Balance:   s.accounts.Balance(req.Principal),
		History:   make([]api.Transfer, 0, len(history)),
	}
	for _, e := range history {
		view.History = append(view.History, api.Transfer{ID: e.ID, From: e.From, To: e.To, Amount: e.Amount})
	}
	return view, nil
}

// moves a manual clock; nodes on wall time refuse
// only the leader's clock stamps commands, so only the leader moves it
func (s *Server) SetTime(ctx context.Context, req *api.SetTimeRequest) (*api.TimeResponse, error) {
	if err := s.requireLeader(); err != nil {
		return nil, err
	}

	m, ok := s.manual()
	if !ok {
		return nil, toGRPCError(types.ErrClockFixed)
	}

	if req.Advance > 0 {
		m.Advance(req.Advance)
	} else if err := m.Set(req.Now); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	now := m.Now()
	s.logger.Info("clock moved", "now", now)
	return &api.TimeResponse{Now: now, Manual: true}, nil
}

func (s *Server) GetStatus(ctx context.Context, req *api.GetStatusRequest) (*api.StatusResponse, error) {
	stats := s.node.Stats()
	_, manual := s.manual()

	return &api.StatusResponse{
		NodeID:        s.node.GetNodeID().String(),
		IsLeader:      s.node.IsLeader(),
		LeaderAddress: s.node.GetLeader(),
		ClusterSize:   s.node.GetClusterSize(),
		State:         s.node.GetState().String(),
		AppliedIndex:  s.node.AppliedIndex(),
		Leases:        stats.Leases,
		Live:          stats.Live,
		Terminated:    stats.Terminated,
		Now:           s.clock.Now(),
		ManualClock:   manual,
	}, nil
}
