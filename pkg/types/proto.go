package types

import (
	"fmt"

	"github.com/pixperk/leasebook/pkg/codec"
	"google.golang.org/protobuf/types/known/structpb"
)

// protobuf envelope of a command as written to the raft log
// {"type": "make_payment", "command": {...}}
func ToProto(cmd Command) (*structpb.Struct, error) {
	body, err := codec.ToStruct(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Type(), err)
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"type":    structpb.NewStringValue(cmd.Type().String()),
			"command": structpb.NewStructValue(body),
		},
	}, nil
}

// converts a protobuf envelope back into the internal command
func FromProtoCommand(wrapper *structpb.Struct) (Command, error) {
	typeName := wrapper.GetFields()["type"].GetStringValue()
	body := wrapper.GetFields()["command"].GetStructValue()
	if body == nil {
		return nil, fmt.Errorf("command %q has no body", typeName)
	}

	var cmd Command
	var err error
	switch typeName {
	case CommandTypeCreateLease.String():
		var c CreateLeaseCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeMakePayment.String():
		var c MakePaymentCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeWithdraw.String():
		var c WithdrawCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeNotifyTermination.String():
		var c NotifyTerminationCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeTerminate.String():
		var c TerminateCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeWithdrawRemainder.String():
		var c WithdrawRemainderCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	case CommandTypeUpdateTenantState.String():
		var c UpdateTenantStateCmd
		err = codec.FromStruct(body, &c)
		cmd = c
	default:
		return nil, fmt.Errorf("unknown command type: %q", typeName)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeName, err)
	}
	return cmd, nil
}
