package api

import (
	"errors"

	"github.com/pixperk/leasebook/pkg/types"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ErrorDomain = "leasebook.v1"

// wire form of each domain error; the reason travels in an ErrorInfo detail
var errorTable = []struct {
	reason string
	err    error
	code   codes.Code
}{
	{"UNAUTHORIZED", types.ErrUnauthorized, codes.PermissionDenied},
	{"INVALID_TERMS", types.ErrInvalidTerms, codes.InvalidArgument},
	{"INVALID_AMOUNT", types.ErrInvalidAmount, codes.InvalidArgument},
	{"ALREADY_ENDED", types.ErrAlreadyEnded, codes.FailedPrecondition},
	{"NOT_YET_ELIGIBLE", types.ErrNotYetEligible, codes.FailedPrecondition},
	{"NOTHING_TO_TRANSFER", types.ErrNothingToTransfer, codes.FailedPrecondition},
	{"NOT_LIVE", types.ErrNotLive, codes.FailedPrecondition},
	{"LEASE_NOT_FOUND", types.ErrLeaseNotFound, codes.NotFound},
	{"INSUFFICIENT_FUNDS", types.ErrInsufficientFunds, codes.FailedPrecondition},
	{"CLOCK_FIXED", types.ErrClockFixed, codes.FailedPrecondition},
}

// converts a domain error into a status carrying its reason
// returns nil when err is not a domain error
func DomainStatus(err error) *status.Status {
	for _, e := range errorTable {
		if !errors.Is(err, e.err) {
			continue
		}
		st := status.New(e.code, err.Error())
		if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: e.reason, Domain: ErrorDomain}); derr == nil {
			return detailed
		}
		return st
	}
	return nil
}

// error returned by a remote call that failed with a domain error;
// errors.Is matches the domain sentinel, Error keeps the server's message
type RemoteError struct {
	Status   *status.Status
	Reason   string
	sentinel error
}

func (e *RemoteError) Error() string { return e.Status.Message() }

func (e *RemoteError) Unwrap() error { return e.sentinel }

func (e *RemoteError) GRPCStatus() *status.Status { return e.Status }

// restores the domain sentinel of a failed call, other errors pass through
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		for _, e := range errorTable {
			if e.reason == info.GetReason() {
				return &RemoteError{Status: st, Reason: e.reason, sentinel: e.err}
			}
		}
	}
	return err
}
