package ledger

import (
	"fmt"

	"github.com/pixperk/leasebook/pkg/types"
)

// relation of a caller to the lease
type Role uint8

const (
	RoleThirdParty Role = iota
	RoleOwner
	RoleTenant
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleTenant:
		return "tenant"
	default:
		return "third party"
	}
}

type Operation uint8

const (
	OpMakePayment Operation = iota + 1
	OpWithdraw
	OpNotifyTermination
	OpTerminate
	OpWithdrawRemainder
	OpUpdateTenantState
)

var operationNames = map[Operation]string{
	OpMakePayment:       "make a payment",
	OpWithdraw:          "withdraw",
	OpNotifyTermination: "notify termination",
	OpTerminate:         "terminate",
	OpWithdrawRemainder: "withdraw the remainder",
	OpUpdateTenantState: "update the tenant state",
}

func (o Operation) String() string { return operationNames[o] }

type roleSet uint8

func roles(rs ...Role) roleSet {
	var s roleSet
	for _, r := range rs {
		s |= 1 << r
	}
	return s
}

func (s roleSet) has(r Role) bool { return s&(1<<r) != 0 }

// who may invoke each operation at all; temporal and state conditions are
// checked by the operation itself. The door is absent: who holds it depends
// on time and state, see doorHolder.
var permissions = map[Operation]roleSet{
	OpMakePayment:       roles(RoleTenant),
	OpWithdraw:          roles(RoleOwner),
	OpNotifyTermination: roles(RoleOwner, RoleTenant),
	OpTerminate:         roles(RoleOwner, RoleTenant),
	OpWithdrawRemainder: roles(RoleTenant),
	OpUpdateTenantState: roles(RoleThirdParty, RoleOwner, RoleTenant),
}

// caller must hold l.mu
func (l *Ledger) roleOf(p types.Principal) Role {
	switch p {
	case l.terms.Owner:
		return RoleOwner
	case l.terms.Tenant:
		return RoleTenant
	default:
		return RoleThirdParty
	}
}

// caller must hold l.mu
func (l *Ledger) authorize(op Operation, caller types.Principal) error {
	role := l.roleOf(caller)
	if !permissions[op].has(role) {
		return fmt.Errorf("%w: %s may not %s", types.ErrUnauthorized, role, op)
	}
	return nil
}

// the only role allowed through the door at now, first match wins:
// defaulted tenant, ended lease and not yet started lease all hand the
// door to the owner
// caller must hold l.mu
func (l *Ledger) doorHolder(now types.Timestamp) Role {
	switch {
	case l.tenantState == types.Defaulted:
		return RoleOwner
	case l.ended(now):
		return RoleOwner
	case now < l.terms.Start:
		return RoleOwner
	default:
		return RoleTenant
	}
}
