// Package projection keeps a queryable SQLite copy of every ledger record,
// fed by the raft FSM after each committed entry. It serves the reads the
// in-memory registry has no index for, such as every lease of a principal.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	logger hclog.Logger
}

func Open(path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer, the raft FSM goroutine
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate projection: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS leases (
	lease_id      INTEGER PRIMARY KEY,
	owner         TEXT NOT NULL,
	tenant        TEXT NOT NULL,
	start         INTEGER NOT NULL,
	fee           TEXT NOT NULL,
	deposit       TEXT NOT NULL,
	end_at        INTEGER,
	withdrawn     TEXT NOT NULL,
	tenant_state  TEXT NOT NULL,
	balance       TEXT NOT NULL,
	status        TEXT NOT NULL,
	applied_index INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS leases_owner ON leases(owner);
CREATE INDEX IF NOT EXISTS leases_tenant ON leases(tenant);
`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const upsertLease = `
INSERT INTO leases(
	lease_id, owner, tenant, start, fee, deposit,
	end_at, withdrawn, tenant_state, balance, status, applied_index
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(lease_id) DO UPDATE SET
	end_at = excluded.end_at,
	withdrawn = excluded.withdrawn,
	tenant_state = excluded.tenant_state,
	balance = excluded.balance,
	status = excluded.status,
	applied_index = excluded.applied_index
WHERE excluded.applied_index >= leases.applied_index
`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsert(db execer, index uint64, rec ledger.Record) error {
	var end sql.NullInt64
	if rec.End != nil {
		end = sql.NullInt64{Int64: int64(*rec.End), Valid: true}
	}

	_, err := db.Exec(upsertLease,
		rec.ID,
		string(rec.Terms.Owner),
		string(rec.Terms.Tenant),
		int64(rec.Terms.Start),
		rec.Terms.Fee.String(),
		rec.Terms.Deposit.String(),
		end,
		rec.Withdrawn.String(),
		rec.TenantState.String(),
		rec.Balance.String(),
		rec.Status.String(),
		index,
	)
	return err
}

// stores rec as of raft index; older indexes never overwrite newer rows
func (s *Store) Upsert(index uint64, rec ledger.Record) error {
	return upsert(s.db, index, rec)
}

// keeps the projection in step with committed entries
func (s *Store) Applied(index uint64, rec ledger.Record, _ []types.Event) error {
	return s.Upsert(index, rec)
}

// reloads every record after the FSM was rebuilt from a snapshot
func (s *Store) Restored(index uint64, records []ledger.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := upsert(tx, index, rec); err != nil {
			return fmt.Errorf("lease %d: %w", rec.ID, err)
		}
	}

	s.logger.Info("projection restored", "index", index, "leases", len(records))
	return tx.Commit()
}

const selectLease = `
SELECT lease_id, owner, tenant, start, fee, deposit,
       end_at, withdrawn, tenant_state, balance, status
FROM leases
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ledger.Record, error) {
	var (
		rec                              ledger.Record
		owner, tenant                    string
		start                            int64
		fee, deposit, withdrawn, balance string
		state, status                    string
		end                              sql.NullInt64
	)

	if err := row.Scan(&rec.ID, &owner, &tenant, &start, &fee, &deposit, &end, &withdrawn, &state, &balance, &status); err != nil {
		return ledger.Record{}, err
	}

	rec.Terms = types.Terms{
		Owner:  types.Principal(owner),
		Tenant: types.Principal(tenant),
		Start:  types.Timestamp(start),
	}
	if end.Valid {
		e := types.Timestamp(end.Int64)
		rec.End = &e
	}

	var err error
	if rec.Terms.Fee, err = decimal.NewFromString(fee); err != nil {
		return ledger.Record{}, err
	}
	if rec.Terms.Deposit, err = decimal.NewFromString(deposit); err != nil {
		return ledger.Record{}, err
	}
	if rec.Withdrawn, err = decimal.NewFromString(withdrawn); err != nil {
		return ledger.Record{}, err
	}
	if rec.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Record{}, err
	}
	if rec.TenantState, err = types.ParseTenantState(state); err != nil {
		return ledger.Record{}, err
	}
	if err := rec.Status.UnmarshalText([]byte(status)); err != nil {
		return ledger.Record{}, err
	}

	return rec, nil
}

func (s *Store) Get(ctx context.Context, leaseID uint64) (ledger.Record, error) {
	row := s.db.QueryRowContext(ctx, selectLease+`WHERE lease_id = ?`, leaseID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, fmt.Errorf("%w: %d", types.ErrLeaseNotFound, leaseID)
	}
	return rec, err
}

// every lease where p is the owner or the tenant, ordered by ID
func (s *Store) ListByPrincipal(ctx context.Context, p types.Principal) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectLease+`WHERE owner = ? OR tenant = ? ORDER BY lease_id`,
		string(p), string(p),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
