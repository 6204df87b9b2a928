package types

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// seconds since the unix epoch
type Timestamp int64

const (
	Minute Timestamp = 60
	Hour   Timestamp = 60 * Minute
	Day    Timestamp = 24 * Hour

	// fixed-length billing period, no calendar semantics
	Month Timestamp = 30 * Day

	// latest start or end a lease accepts; rounding an end up and adding the
	// remainder grace must stay representable
	MaxTimestamp Timestamp = math.MaxInt64 - 2*Month
)

// identity of an account holder (owner, tenant or anybody else)
type Principal string

// terms agreed when the lease is created, never modified afterwards
type Terms struct {
	Owner   Principal       `json:"owner"`
	Tenant  Principal       `json:"tenant"`
	Start   Timestamp       `json:"start"`
	Fee     decimal.Decimal `json:"fee"`     //monthly rent in the smallest currency unit
	Deposit decimal.Decimal `json:"deposit"` //security deposit, at least two fees
}

// checks the construction invariants against the creation time
func (t Terms) Validate(now Timestamp) error {
	switch {
	case t.Owner == "" || t.Tenant == "":
		return fmt.Errorf("%w: owner and tenant are required", ErrInvalidTerms)
	case t.Owner == t.Tenant:
		return fmt.Errorf("%w: owner cannot be their own tenant", ErrInvalidTerms)
	case t.Start <= now:
		return fmt.Errorf("%w: start %d is not after %d", ErrInvalidTerms, t.Start, now)
	case t.Start > MaxTimestamp:
		return fmt.Errorf("%w: start %d is out of range", ErrInvalidTerms, t.Start)
	case !t.Fee.IsPositive():
		return fmt.Errorf("%w: fee must be positive", ErrInvalidTerms)
	case !t.Fee.IsInteger() || !t.Deposit.IsInteger():
		return fmt.Errorf("%w: amounts must be whole units", ErrInvalidTerms)
	case t.Deposit.LessThan(t.Fee.Mul(decimal.NewFromInt(2))):
		return fmt.Errorf("%w: deposit %s is less than twice the fee", ErrInvalidTerms, t.Deposit)
	}
	return nil
}

// risk classification of the tenant
type TenantState uint8

const (
	OnTime TenantState = iota
	Belated
	Defaulted
)

var tenantStateNames = [...]string{
	OnTime:    "on time",
	Belated:   "belated",
	Defaulted: "defaulted",
}

func (s TenantState) String() string {
	if int(s) < len(tenantStateNames) {
		return tenantStateNames[s]
	}
	return fmt.Sprintf("TenantState(%d)", uint8(s))
}

func (s TenantState) MarshalText() ([]byte, error) {
	if int(s) >= len(tenantStateNames) {
		return nil, fmt.Errorf("unknown tenant state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *TenantState) UnmarshalText(text []byte) error {
	parsed, err := ParseTenantState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// parses the text form ("on time", "belated", "defaulted")
func ParseTenantState(name string) (TenantState, error) {
	for i, n := range tenantStateNames {
		if n == name {
			return TenantState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tenant state %q", name)
}

// lifecycle of a ledger record
type Status uint8

const (
	StatusLive Status = iota
	StatusTerminated
)

func (s Status) String() string {
	if s == StatusTerminated {
		return "terminated"
	}
	return "live"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "live":
		*s = StatusLive
	case "terminated":
		*s = StatusTerminated
	default:
		return fmt.Errorf("unknown ledger status %q", text)
	}
	return nil
}
