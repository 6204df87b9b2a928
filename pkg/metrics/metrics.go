package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operation latency - histogram to track p50/p90/p99
	// tracks how long an operation takes end to end, including raft consensus
	// labels: operation (make_payment, withdraw, ...)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leasebook_operation_duration_seconds",
			Help:    "time taken to serve a lease operation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to 512ms
		},
		[]string{"operation"},
	)

	// operation counter - counts outcomes per operation
	// labels: operation, result (ok or the rejection kind)
	OperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leasebook_operation_total",
			Help: "total number of lease operations",
		},
		[]string{"operation", "result"},
	)

	// funds moved in or out of lease escrow, in the smallest currency unit
	// labels: operation (make_payment, withdraw, withdraw_remainder)
	FundsTransferredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leasebook_funds_transferred_total",
			Help: "total amount moved through lease escrow accounts",
		},
		[]string{"operation"},
	)

	// tenant state transitions observed by update_tenant_state
	// labels: state (on time, belated, defaulted)
	TenantStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leasebook_tenant_state_changes_total",
			Help: "total number of tenant state changes",
		},
		[]string{"state"},
	)

	// live leases held by the registry
	LeasesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_leases_active",
			Help: "current number of live leases",
		},
	)

	// terminated leases, kept for reads
	LeasesTerminated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_leases_terminated",
			Help: "current number of terminated leases",
		},
	)

	// raft leader status - 1 if this node is leader, 0 if follower
	// exactly one node in cluster should have this = 1
	RaftIsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_raft_is_leader",
			Help: "whether this node is the raft leader (1 = leader, 0 = follower)",
		},
	)

	// cluster size - number of servers in the raft configuration
	RaftPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_raft_peers",
			Help: "number of peers in the raft cluster",
		},
	)

	// raft log index - last index applied to FSM
	// lag between leader and follower = replication delay
	RaftAppliedIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_raft_applied_index",
			Help: "last raft log index applied to the fsm",
		},
	)

	// gateway requests by route pattern and http status
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leasebook_gateway_requests_total",
			Help: "total number of http gateway requests",
		},
		[]string{"route", "code"},
	)

	// service uptime - always 1 when running
	// scrape failure = 0 in prometheus (service down)
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leasebook_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

func init() {
	// set uptime gauge to 1 on startup
	Up.Set(1)
}
