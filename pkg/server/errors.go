package server

import (
	"context"
	"errors"

	"github.com/pixperk/leasebook/pkg/api"
	"github.com/pixperk/leasebook/pkg/raft"
	"github.com/pixperk/leasebook/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// converts domain errors to gRPC status errors
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	if st := api.DomainStatus(err); st != nil {
		return st.Err()
	}

	switch {
	case errors.Is(err, raft.ErrNotLeader):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, raft.ErrOutcomeUnknown):
		return status.Error(codes.Unknown, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// returns a not leader error with the given leader address
// includes the current leader address in the error message
func notLeaderError(leaderAddr string) error {
	return status.Errorf(codes.Unavailable,
		"not leader, leader is at : %s", leaderAddr)
}

// true when a failed payment provably left the ledger untouched
func refundable(err error) bool {
	return !errors.Is(err, raft.ErrOutcomeUnknown)
}

// metric label for the outcome of an operation; status errors are
// mapped back to their domain sentinel first
func resultLabel(err error) string {
	err = api.FromStatus(err)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, types.ErrInvalidTerms), errors.Is(err, types.ErrInvalidAmount):
		return "invalid"
	case errors.Is(err, types.ErrAlreadyEnded):
		return "already_ended"
	case errors.Is(err, types.ErrNotYetEligible):
		return "not_yet_eligible"
	case errors.Is(err, types.ErrNothingToTransfer):
		return "nothing_to_transfer"
	case errors.Is(err, types.ErrNotLive):
		return "not_live"
	case errors.Is(err, types.ErrLeaseNotFound):
		return "not_found"
	case errors.Is(err, types.ErrInsufficientFunds):
		return "insufficient_funds"
	case status.Code(err) == codes.Unavailable:
		return "not_leader"
	default:
		return "error"
	}
}
