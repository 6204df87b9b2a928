package api

import (
	"context"

	"github.com/pixperk/leasebook/pkg/codec"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "leasebook.v1.LeaseService"

const (
	MethodCreateLease       = "CreateLease"
	MethodMakePayment       = "MakePayment"
	MethodOpenDoor          = "OpenDoor"
	MethodWithdraw          = "Withdraw"
	MethodNotifyTermination = "NotifyTermination"
	MethodTerminate         = "Terminate"
	MethodWithdrawRemainder = "WithdrawRemainder"
	MethodUpdateTenantState = "UpdateTenantState"
	MethodGetLease          = "GetLease"
	MethodListLeases        = "ListLeases"
	MethodGetEvents         = "GetEvents"
	MethodGetAccount        = "GetAccount"
	MethodSetTime           = "SetTime"
	MethodGetStatus         = "GetStatus"
)

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// server side of leasebook.v1.LeaseService
type LeaseServiceServer interface {
	CreateLease(context.Context, *CreateLeaseRequest) (*CreateLeaseResponse, error)
	MakePayment(context.Context, *MakePaymentRequest) (*OperationResponse, error)
	OpenDoor(context.Context, *LeaseCallRequest) (*OpenDoorResponse, error)
	Withdraw(context.Context, *LeaseCallRequest) (*OperationResponse, error)
	NotifyTermination(context.Context, *NotifyTerminationRequest) (*OperationResponse, error)
	Terminate(context.Context, *LeaseCallRequest) (*OperationResponse, error)
	WithdrawRemainder(context.Context, *LeaseCallRequest) (*OperationResponse, error)
	UpdateTenantState(context.Context, *LeaseCallRequest) (*OperationResponse, error)
	GetLease(context.Context, *GetLeaseRequest) (*LeaseView, error)
	ListLeases(context.Context, *ListLeasesRequest) (*ListLeasesResponse, error)
	GetEvents(context.Context, *GetEventsRequest) (*GetEventsResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountView, error)
	SetTime(context.Context, *SetTimeRequest) (*TimeResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*StatusResponse, error)
}

// adapts a typed method to the Struct-based wire format
func unary[Req, Resp any](method string, call func(LeaseServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			req := new(Req)
			if err := codec.FromStruct(in, req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "malformed %s request: %v", method, err)
			}

			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(LeaseServiceServer), ctx, req.(*Req))
				if err != nil {
					return nil, err
				}
				out, err := codec.ToStruct(resp)
				if err != nil {
					return nil, status.Errorf(codes.Internal, "encode %s response: %v", method, err)
				}
				return out, nil
			}

			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, req, info, handler)
		},
	}
}

var LeaseServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LeaseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateLease, LeaseServiceServer.CreateLease),
		unary(MethodMakePayment, LeaseServiceServer.MakePayment),
		unary(MethodOpenDoor, LeaseServiceServer.OpenDoor),
		unary(MethodWithdraw, LeaseServiceServer.Withdraw),
		unary(MethodNotifyTermination, LeaseServiceServer.NotifyTermination),
		unary(MethodTerminate, LeaseServiceServer.Terminate),
		unary(MethodWithdrawRemainder, LeaseServiceServer.WithdrawRemainder),
		unary(MethodUpdateTenantState, LeaseServiceServer.UpdateTenantState),
		unary(MethodGetLease, LeaseServiceServer.GetLease),
		unary(MethodListLeases, LeaseServiceServer.ListLeases),
		unary(MethodGetEvents, LeaseServiceServer.GetEvents),
		unary(MethodGetAccount, LeaseServiceServer.GetAccount),
		unary(MethodSetTime, LeaseServiceServer.SetTime),
		unary(MethodGetStatus, LeaseServiceServer.GetStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "leasebook/v1/lease.proto",
}

func RegisterLeaseServiceServer(s grpc.ServiceRegistrar, srv LeaseServiceServer) {
	s.RegisterService(&LeaseServiceDesc, srv)
}

// calls method with req encoded as a Struct and decodes the reply into a Resp
func Invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req *Req, opts ...grpc.CallOption) (*Resp, error) {
	in, err := codec.ToStruct(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}

	resp := new(Resp)
	if err := codec.FromStruct(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
