package fsm

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/pixperk/leasebook/pkg/ledger"
	"github.com/pixperk/leasebook/pkg/types"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// observes committed state changes
// index is the raft log index of the entry, so a hook can ignore entries it
// has already seen when the log is replayed after a restart
type Hook interface {
	Applied(index uint64, rec ledger.Record, events []types.Event) error
}

// optional hook extension, told about every record when the FSM is rebuilt
// from a snapshot
type RestoreHook interface {
	Restored(index uint64, records []ledger.Record) error
}

// adapter to bridge Raft FSM with our internal FSM
type RaftFSM struct {
	fsm *FSM

	hooksMu sync.RWMutex
	hooks   []Hook

	lastIndex uint64 //only touched from raft's FSM goroutine
	logger    hclog.Logger
}

func NewRaftFSM(logger hclog.Logger, hooks ...Hook) *RaftFSM {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RaftFSM{
		fsm:    NewFSM(),
		hooks:  hooks,
		logger: logger,
	}
}

// the underlying registry, for reads
func (rf *RaftFSM) FSM() *FSM { return rf.fsm }

// registers a hook for entries applied from now on
func (rf *RaftFSM) AddHook(h Hook) {
	rf.hooksMu.Lock()
	defer rf.hooksMu.Unlock()
	rf.hooks = append(rf.hooks, h)
}

func (rf *RaftFSM) Apply(log *raft.Log) any {
	rf.lastIndex = log.Index

	//s1 : deserialize proto from bytes
	var wrapper structpb.Struct
	if err := proto.Unmarshal(log.Data, &wrapper); err != nil {
		return err
	}

	//s2 : convert proto to internal command
	cmd, err := types.FromProtoCommand(&wrapper)
	if err != nil {
		return err
	}

	//s3 : apply internal command to FSM
	result, err := rf.fsm.Apply(cmd)
	if err != nil {
		return err
	}

	//s4 : let observers catch up, the entry is committed either way
	rf.notify(log.Index, result)

	return result
}

func (rf *RaftFSM) notify(index uint64, result any) {
	var (
		rec    ledger.Record
		events []types.Event
	)
	switch r := result.(type) {
	case CreateLeaseResponse:
		rec, events = r.Record, []types.Event{r.Event}
	case OperationResponse:
		rec = r.Record
		if r.Receipt.Event != nil {
			events = []types.Event{r.Receipt.Event}
		}
	default:
		return
	}

	rf.hooksMu.RLock()
	defer rf.hooksMu.RUnlock()

	for _, h := range rf.hooks {
		if err := h.Applied(index, rec, events); err != nil {
			rf.logger.Error("hook failed", "index", index, "lease", rec.ID, "hook", fmt.Sprintf("%T", h), "error", err)
		}
	}
}

// create a snapshot of the current FSM state
func (rf *RaftFSM) Snapshot() (raft.FSMSnapshot, error) {
	stats := rf.fsm.Stats()

	return &fsmSnapshot{
		Records:     rf.fsm.Leases(),
		NextLeaseID: stats.NextLeaseID,
		LastIndex:   rf.lastIndex,
	}, nil
}

// restores FSM state from snapshot
// when a node falls behind and needs to catch up or a new node joins
func (rf *RaftFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(snapshot).Decode(&snap); err != nil {
		return err
	}

	ledgers := make(map[uint64]*ledger.Ledger, len(snap.Records))
	for _, rec := range snap.Records {
		l, err := ledger.FromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		ledgers[rec.ID] = l
	}

	rf.fsm.mu.Lock()
	rf.fsm.ledgers = ledgers
	rf.fsm.nextLeaseID = snap.NextLeaseID
	rf.fsm.mu.Unlock()

	rf.lastIndex = snap.LastIndex

	rf.hooksMu.RLock()
	defer rf.hooksMu.RUnlock()

	for _, h := range rf.hooks {
		rh, ok := h.(RestoreHook)
		if !ok {
			continue
		}
		if err := rh.Restored(snap.LastIndex, snap.Records); err != nil {
			rf.logger.Error("restore hook failed", "index", snap.LastIndex, "hook", fmt.Sprintf("%T", h), "error", err)
		}
	}

	return nil
}

// point-in-time snapshot of FSM state
type fsmSnapshot struct {
	Records     []ledger.Record `json:"records"`
	NextLeaseID uint64          `json:"next_lease_id"`
	LastIndex   uint64          `json:"last_index"`
}

// persist snapshot to given sink
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel() //fail snapshot on error
		return err
	}
	return sink.Close() //mark snapshot as complete
}

// records are copies, nothing to clean up
func (s *fsmSnapshot) Release() {}
