package server

import (
	"errors"
	"fmt"
	"testing"

	hraft "github.com/hashicorp/raft"
	"github.com/pixperk/leasebook/pkg/raft"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{types.ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: lease ends at 5", types.ErrNotYetEligible), "not_yet_eligible"},
		{types.ErrInvalidAmount, "invalid"},
		{types.ErrLeaseNotFound, "not_found"},
		{notLeaderError("127.0.0.1:7000"), "not_leader"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, resultLabel(tt.err))
			assert.Equal(t, tt.want, resultLabel(toGRPCError(tt.err)), "after conversion to a status")
		})
	}
}

func TestRefundable(t *testing.T) {
	assert.True(t, refundable(types.ErrUnauthorized))
	assert.True(t, refundable(fmt.Errorf("%w: %w", raft.ErrNotLeader, hraft.ErrNotLeader)))
	assert.True(t, refundable(fmt.Errorf("failed to apply command: %w", hraft.ErrEnqueueTimeout)))
	assert.False(t, refundable(fmt.Errorf("%w: %w", raft.ErrOutcomeUnknown, hraft.ErrLeadershipLost)))
}
