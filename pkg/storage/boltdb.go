package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

const (
	raftDBFile      = "raft.db"
	snapshotsDir    = "snapshots"
	defaultRetained = 3
)

// BoltDBStorage wraps Raft's BoltDB storage components
// logstore : stores the Raft log entries
// stablestore : stores stable Raft metadata [stable = survives restarts]
// snapshotstore : stores snapshots of every ledger record
type BoltDBStorage struct {
	LogStore      raft.LogStore
	StableStore   raft.StableStore
	SnapshotStore raft.SnapshotStore

	db *raftboltdb.BoltStore
}

type Options struct {
	Dir string

	// snapshots kept on disk, defaults to 3
	RetainSnapshots int

	// skip fsync on log writes, tests only
	NoSync bool

	Logger hclog.Logger
}

func NewBoltDBStorage(opts Options) (*BoltDBStorage, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("storage: data dir is required")
	}
	if opts.RetainSnapshots <= 0 {
		opts.RetainSnapshots = defaultRetained
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}

	//boltDB is used for both log and stable storage
	boltDB, err := raftboltdb.New(raftboltdb.Options{
		Path:   filepath.Join(opts.Dir, raftDBFile),
		NoSync: opts.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("open raft log store: %w", err)
	}

	//snapshot store (file-based)
	snapshotStore, err := raft.NewFileSnapshotStoreWithLogger(
		filepath.Join(opts.Dir, snapshotsDir),
		opts.RetainSnapshots,
		opts.Logger.Named("snapshots"),
	)
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	return &BoltDBStorage{
		LogStore:      boltDB,
		StableStore:   boltDB,
		SnapshotStore: snapshotStore,
		db:            boltDB,
	}, nil
}

func (b *BoltDBStorage) Close() error {
	return b.db.Close()
}
