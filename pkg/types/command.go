package types

import "github.com/shopspring/decimal"

// type of FSM command
type CommandType uint

const (
	CommandTypeCreateLease CommandType = iota + 1
	CommandTypeMakePayment
	CommandTypeWithdraw
	CommandTypeNotifyTermination
	CommandTypeTerminate
	CommandTypeWithdrawRemainder
	CommandTypeUpdateTenantState
)

var commandTypeNames = map[CommandType]string{
	CommandTypeCreateLease:       "create_lease",
	CommandTypeMakePayment:       "make_payment",
	CommandTypeWithdraw:          "withdraw",
	CommandTypeNotifyTermination: "notify_termination",
	CommandTypeTerminate:         "terminate",
	CommandTypeWithdrawRemainder: "withdraw_remainder",
	CommandTypeUpdateTenantState: "update_tenant_state",
}

func (t CommandType) String() string {
	if name, ok := commandTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// interface all FSM commands implement
// every command carries the time it was issued at so replicas agree on derived values
type Command interface {
	Type() CommandType
	IssuedAt() Timestamp
}

// opens a new ledger
type CreateLeaseCmd struct {
	Terms Terms     `json:"terms"`
	Now   Timestamp `json:"now"`
}

func (c CreateLeaseCmd) Type() CommandType   { return CommandTypeCreateLease }
func (c CreateLeaseCmd) IssuedAt() Timestamp { return c.Now }

// tenant pays into the ledger
type MakePaymentCmd struct {
	LeaseID uint64          `json:"lease_id"`
	Caller  Principal       `json:"caller"`
	Amount  decimal.Decimal `json:"amount"`
	Now     Timestamp       `json:"now"`
}

func (c MakePaymentCmd) Type() CommandType   { return CommandTypeMakePayment }
func (c MakePaymentCmd) IssuedAt() Timestamp { return c.Now }

// owner pulls accrued rent
type WithdrawCmd struct {
	LeaseID uint64    `json:"lease_id"`
	Caller  Principal `json:"caller"`
	Now     Timestamp `json:"now"`
}

func (c WithdrawCmd) Type() CommandType   { return CommandTypeWithdraw }
func (c WithdrawCmd) IssuedAt() Timestamp { return c.Now }

// either party sets the end date
type NotifyTerminationCmd struct {
	LeaseID     uint64    `json:"lease_id"`
	Caller      Principal `json:"caller"`
	ProposedEnd Timestamp `json:"proposed_end"`
	Now         Timestamp `json:"now"`
}

func (c NotifyTerminationCmd) Type() CommandType   { return CommandTypeNotifyTermination }
func (c NotifyTerminationCmd) IssuedAt() Timestamp { return c.Now }

// closes a drained ledger for good
type TerminateCmd struct {
	LeaseID uint64    `json:"lease_id"`
	Caller  Principal `json:"caller"`
	Now     Timestamp `json:"now"`
}

func (c TerminateCmd) Type() CommandType   { return CommandTypeTerminate }
func (c TerminateCmd) IssuedAt() Timestamp { return c.Now }

// tenant reclaims what is left after the grace period
type WithdrawRemainderCmd struct {
	LeaseID uint64    `json:"lease_id"`
	Caller  Principal `json:"caller"`
	Now     Timestamp `json:"now"`
}

func (c WithdrawRemainderCmd) Type() CommandType   { return CommandTypeWithdrawRemainder }
func (c WithdrawRemainderCmd) IssuedAt() Timestamp { return c.Now }

// anyone refreshes the cached tenant state
type UpdateTenantStateCmd struct {
	LeaseID uint64    `json:"lease_id"`
	Caller  Principal `json:"caller"`
	Now     Timestamp `json:"now"`
}

func (c UpdateTenantStateCmd) Type() CommandType   { return CommandTypeUpdateTenantState }
func (c UpdateTenantStateCmd) IssuedAt() Timestamp { return c.Now }
