package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/codec"
	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const journalDBFile = "journal.db"

var leasesBucket = []byte("leases")

// append-only history of ledger events, one nested bucket per lease
// critical :
// - keys are (raft index, position in entry), so a replayed entry
//   overwrites itself instead of duplicating
// - entries are never deleted
type Journal struct {
	db     *bolt.DB
	logger hclog.Logger
}

// a journaled event and the raft entry that produced it
type Entry struct {
	Index uint64
	Seq   uint32
	Event types.Event
}

// on-disk envelope; payload is decoded once the kind is known
type envelope struct {
	Kind    types.EventKind  `cbor:"kind"`
	LeaseID uint64           `cbor:"lease"`
	Index   uint64           `cbor:"index"`
	At      types.Timestamp  `cbor:"at"`
	Payload codec.RawMessage `cbor:"payload"`
}

func OpenJournal(dir string, logger hclog.Logger) (*Journal, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, journalDBFile), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(leasesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(index uint64, seq uint32) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key, index)
	binary.BigEndian.PutUint32(key[8:], seq)
	return key
}

func leaseKey(leaseID uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, leaseID)
	return key
}

// writes the events produced by the raft entry at index, in one transaction
func (j *Journal) Append(index uint64, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(leasesBucket)

		for seq, event := range events {
			meta := event.Meta()

			payload, err := codec.Marshal(event)
			if err != nil {
				return fmt.Errorf("encode %s: %w", event.Kind(), err)
			}
			value, err := codec.Marshal(envelope{
				Kind:    event.Kind(),
				LeaseID: meta.LeaseID,
				Index:   index,
				At:      meta.At,
				Payload: payload,
			})
			if err != nil {
				return err
			}

			bucket, err := root.CreateBucketIfNotExists(leaseKey(meta.LeaseID))
			if err != nil {
				return err
			}
			if err := bucket.Put(entryKey(index, uint32(seq)), value); err != nil {
				return err
			}

			j.logger.Trace("journaled event", "lease", meta.LeaseID, "index", index, "kind", event.Kind())
		}
		return nil
	})
}

// every event of a lease in log order; nil when the lease has none
func (j *Journal) Events(leaseID uint64) ([]Entry, error) {
	var entries []Entry

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(leasesBucket).Bucket(leaseKey(leaseID))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != 12 {
				return errors.New("journal: malformed key")
			}

			var env envelope
			if err := codec.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("journal: decode envelope: %w", err)
			}

			event, err := types.DecodeEvent(env.Kind, func(v any) error {
				return codec.Unmarshal(env.Payload, v)
			})
			if err != nil {
				return fmt.Errorf("journal: lease %d index %d: %w", leaseID, env.Index, err)
			}

			entries = append(entries, Entry{
				Index: binary.BigEndian.Uint64(k),
				Seq:   binary.BigEndian.Uint32(k[8:]),
				Event: event,
			})
			return nil
		})
	})
	return entries, err
}

// journals every committed entry
func (j *Journal) Applied(index uint64, _ ledger.Record, events []types.Event) error {
	return j.Append(index, events)
}
