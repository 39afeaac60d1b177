package cosmos

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	abci "github.com/cometbft/cometbft/abci/types"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type protoMarshaler interface {
	Marshal() ([]byte, error)
}

type protoUnmarshaler interface {
	Unmarshal([]byte) error
}

// Invoke implements the grpc ClientConn.Invoke method by routing the query through ABCI.
func (cc *CosmosProvider) Invoke(ctx context.Context, method string, req, reply interface{}, _ ...grpc.CallOption) error {
	if req == nil || reflect.ValueOf(req).IsNil() {
		return errors.New("request cannot be nil")
	}

	in, ok := req.(protoMarshaler)
	if !ok {
		return fmt.Errorf("%T is not a protobuf message", req)
	}
	out, ok := reply.(protoUnmarshaler)
	if !ok {
		return fmt.Errorf("%T is not a protobuf message", reply)
	}

	reqBz, err := in.Marshal()
	if err != nil {
		return err
	}

	res, err := cc.QueryABCI(ctx, abci.RequestQuery{Path: method, Data: reqBz})
	if err != nil {
		return err
	}

	if err := out.Unmarshal(res.Value); err != nil {
		return err
	}

	return codectypes.UnpackInterfaces(reply, cc.Cdc.InterfaceRegistry)
}

// NewStream implements the grpc ClientConn.NewStream method
func (cc *CosmosProvider) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streaming rpc not supported")
}

// QueryABCI performs an ABCI query and returns the appropriate response and error sdk error code.
func (cc *CosmosProvider) QueryABCI(ctx context.Context, req abci.RequestQuery) (abci.ResponseQuery, error) {
	opts := rpcclient.ABCIQueryOptions{
		Height: req.Height,
		Prove:  req.Prove,
	}
	result, err := cc.RPCClient.ABCIQueryWithOptions(ctx, req.Path, req.Data, opts)
	if err != nil {
		return abci.ResponseQuery{}, err
	}

	if !result.Response.IsOK() {
		return abci.ResponseQuery{}, sdkErrorToGRPCError(result.Response)
	}

	return result.Response, nil
}

func sdkErrorToGRPCError(resp abci.ResponseQuery) error {
	switch resp.Code {
	case sdkerrors.ErrInvalidRequest.ABCICode():
		return status.Error(codes.InvalidArgument, resp.Log)
	case sdkerrors.ErrUnauthorized.ABCICode():
		return status.Error(codes.Unauthenticated, resp.Log)
	case sdkerrors.ErrKeyNotFound.ABCICode():
		return status.Error(codes.NotFound, resp.Log)
	default:
		return status.Error(codes.Unknown, resp.Log)
	}
}
