package raft

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/pixperk/leasebook/pkg/fsm"
	"github.com/pixperk/leasebook/pkg/metrics"
	"github.com/pixperk/leasebook/pkg/storage"
	"github.com/pixperk/leasebook/pkg/types"
	"google.golang.org/protobuf/proto"
)

var (
	// returned by Apply on a follower, the command was never appended
	ErrNotLeader = errors.New("not the raft leader")

	// returned by Apply when the command may or may not commit later,
	// e.g. leadership was lost after it was appended
	ErrOutcomeUnknown = errors.New("command outcome unknown")
)

// wraps a raft inst with our fsm and provides a clean api
type Node struct {
	raft    *raft.Raft
	fsm     *fsm.FSM
	raftFSM *fsm.RaftFSM
	stores  *storage.BoltDBStorage
	cfg     *Config
	logger  hclog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type Config struct {
	NodeID        uuid.UUID //unique ID for this node
	BindAddr      string    //net addr to bind Raft communication
	AdvertiseAddr string    //addr peers dial, defaults to the bound listener
	DataDir       string    //data directory for Raft storage
	Bootstrap     bool      //if this is the first node in the cluster

	// observers of committed entries (journal, projection)
	Hooks []fsm.Hook

	// how long Apply waits for the entry to commit, defaults to 5s
	ApplyTimeout time.Duration

	Logger hclog.Logger
}

func NewNode(cfg *Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	raftFSM := fsm.NewRaftFSM(logger.Named("fsm"), cfg.Hooks...)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID.String())
	raftCfg.Logger = logger.Named("raft")

	raftCfg.HeartbeatTimeout = 1000 * time.Millisecond
	raftCfg.ElectionTimeout = 1000 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond //time to wait before committing entries
	raftCfg.SnapshotThreshold = 8192              // snapshot after 8K log entries

	//add boltDB storage
	stores, err := storage.NewBoltDBStorage(storage.Options{
		Dir:    cfg.DataDir,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stores: %w", err)
	}

	//tcp transport for inter-node communication
	//a nil advertise addr makes raft use the bound listener, so ":0" works
	var advertise net.Addr
	if cfg.AdvertiseAddr != "" {
		advertise, err = net.ResolveTCPAddr("tcp", cfg.AdvertiseAddr)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("failed to resolve advertise addr: %w", err)
		}
	}

	transport, err := raft.NewTCPTransportWithLogger(cfg.BindAddr, advertise, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, raftFSM, stores.LogStore, stores.StableStore, stores.SnapshotStore, transport)
	if err != nil {
		transport.Close()
		stores.Close()
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	//bootstrap if needed, ignored when the cluster already has state
	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raftCfg.LocalID,
					Address: transport.LocalAddr(),
				},
			},
		}

		if err := r.BootstrapCluster(configuration).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
			logger.Warn("bootstrap failed", "error", err)
		}
	}

	n := &Node{
		raft:    r,
		fsm:     raftFSM.FSM(),
		raftFSM: raftFSM,
		stores:  stores,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go n.monitor()

	return n, nil
}

// apply a command to the Raft cluster
// domain rejections come back as the error, with the sentinel preserved
func (n *Node) Apply(cmd types.Command) (any, error) {
	wrapper, err := types.ToProto(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to proto: %w", err)
	}

	data, err := proto.Marshal(wrapper)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proto: %w", err)
	}

	//replicate to cluster via Raft
	future := n.raft.Apply(data, n.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		return nil, applyError(err)
	}

	//the fsm returns rejections as values
	resp := future.Response()
	if err, ok := resp.(error); ok {
		return nil, err
	}
	return resp, nil
}

// classifies a raft apply failure. only a command that provably never
// reached the log is reported as anything but ErrOutcomeUnknown
func applyError(err error) error {
	switch {
	case errors.Is(err, raft.ErrNotLeader):
		return fmt.Errorf("%w: %w", ErrNotLeader, err)
	case errors.Is(err, raft.ErrEnqueueTimeout):
		return fmt.Errorf("failed to apply command: %w", err)
	default:
		return fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
	}
}

// the replicated registry, for reads
func (n *Node) FSM() *fsm.FSM {
	return n.fsm
}

func (n *Node) GetNodeID() uuid.UUID {
	return n.cfg.NodeID
}

// returns true if this node is the leader
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// returns the leader's address
func (n *Node) GetLeader() string {
	leaderAddr, _ := n.raft.LeaderWithID()
	return string(leaderAddr)
}

func (n *Node) GetState() raft.RaftState {
	return n.raft.State()
}

// number of servers in the latest raft configuration
func (n *Node) GetClusterSize() int {
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

func (n *Node) AppliedIndex() uint64 {
	return n.raft.AppliedIndex()
}

// adds a voting member, leader only
func (n *Node) AddVoter(id uuid.UUID, addr string) error {
	if !n.IsLeader() {
		return ErrNotLeader
	}
	return n.raft.AddVoter(raft.ServerID(id.String()), raft.ServerAddress(addr), 0, 0).Error()
}

// blocks until a leader is elected
func (n *Node) WaitForLeader(timeout time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-timeoutCh:
			return fmt.Errorf("no leader elected within timeout")
		case <-ticker.C:
			if n.GetLeader() != "" {
				return nil
			}
		}
	}
}

// returns FSM statistics
func (n *Node) Stats() fsm.Stats {
	return n.fsm.Stats()
}

// keeps the raft gauges current
func (n *Node) monitor() {
	defer close(n.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			metrics.RaftIsLeader.Set(0)
			return
		case isLeader := <-n.raft.LeaderCh():
			if isLeader {
				metrics.RaftIsLeader.Set(1)
				n.logger.Info("gained leadership")
			} else {
				metrics.RaftIsLeader.Set(0)
				n.logger.Info("lost leadership", "leader", n.GetLeader())
			}
		case <-ticker.C:
			stats := n.fsm.Stats()
			metrics.RaftAppliedIndex.Set(float64(n.raft.AppliedIndex()))
			metrics.RaftPeers.Set(float64(n.GetClusterSize()))
			metrics.LeasesActive.Set(float64(stats.Live))
			metrics.LeasesTerminated.Set(float64(stats.Terminated))
		}
	}
}

// gracefully shuts down the Raft node
func (n *Node) Shutdown() error {
	var err error
	n.stopOnce.Do(func() {
		close(n.stopCh)
		<-n.doneCh

		err = n.raft.Shutdown().Error()
		if cerr := n.stores.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
