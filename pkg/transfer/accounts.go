// Package transfer moves value between principals. Leases settle through it:
// a payment moves funds from the tenant into the lease's escrow account and a
// withdrawal moves them out to the recipient the ledger names.
package transfer

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
)

const escrowPrefix = "lease/"

// account holding the funds of a lease
func EscrowAccount(leaseID uint64) types.Principal {
	return types.Principal(escrowPrefix + strconv.FormatUint(leaseID, 10))
}

// a completed movement of funds
type Entry struct {
	ID     uuid.UUID       `json:"id"`
	From   types.Principal `json:"from"` //empty for minted funds
	To     types.Principal `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// in-memory balances
// critical :
// - no balance ever goes negative
// - a transfer either moves the whole amount or nothing
type Accounts struct {
	mu       sync.Mutex
	balances map[types.Principal]decimal.Decimal
	history  []Entry
}

func NewAccounts() *Accounts {
	return &Accounts{
		balances: make(map[types.Principal]decimal.Decimal),
	}
}

// credits p with freshly created funds
func (a *Accounts) Mint(p types.Principal, amount decimal.Decimal) error {
	if p == "" {
		return fmt.Errorf("%w: mint to empty principal", types.ErrInvalidAmount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: mint of %s", types.ErrInvalidAmount, amount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.balances[p] = a.balances[p].Add(amount)
	a.history = append(a.history, Entry{ID: uuid.New(), To: p, Amount: amount})
	return nil
}

// moves amount from one principal to another and returns what the sender
// has left. A zero amount moves nothing.
func (a *Accounts) Transfer(from, to types.Principal, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: transfer of %s", types.ErrInvalidAmount, amount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	balance := a.balances[from]
	if amount.IsZero() {
		return balance, nil
	}
	if balance.LessThan(amount) {
		return balance, fmt.Errorf("%w: %s holds %s, needs %s", types.ErrInsufficientFunds, from, balance, amount)
	}

	balance = balance.Sub(amount)
	a.balances[from] = balance
	a.balances[to] = a.balances[to].Add(amount)
	a.history = append(a.history, Entry{ID: uuid.New(), From: from, To: to, Amount: amount})

	return balance, nil
}

func (a *Accounts) Balance(p types.Principal) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[p]
}

// entries sent or received by p, oldest first
func (a *Accounts) History(p types.Principal) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []Entry
	for _, e := range a.history {
		if e.From == p || e.To == p {
			entries = append(entries, e)
		}
	}
	return entries
}
