package cosmos

import (
	"time"

	rpcclient "github.com/cometbft/cometbft/rpc/client"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	libclient "github.com/cometbft/cometbft/rpc/jsonrpc/client"
	gogogrpc "github.com/cosmos/gogoproto/grpc"
)

var _ gogogrpc.ClientConn = &CosmosProvider{}

const defaultRPCTimeout = 10 * time.Second

// CosmosProvider answers queries and accepts broadcasts for one cosmos chain.
type CosmosProvider struct {
	Cdc       Codec
	RPCClient rpcclient.Client
}

// NewProvider connects to the cometbft RPC at rpcURL.
func NewProvider(rpcURL string, timeout time.Duration) (*CosmosProvider, error) {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	rpcClient, err := newRPCClient(rpcURL, timeout)
	if err != nil {
		return nil, err
	}

	return NewProviderWithClient(rpcClient), nil
}

// NewProviderWithClient wraps an existing RPC client.
func NewProviderWithClient(client rpcclient.Client) *CosmosProvider {
	return &CosmosProvider{
		Cdc:       makeCodec(),
		RPCClient: client,
	}
}

// newRPCClient initializes a new tendermint RPC client connected to the specified address.
func newRPCClient(addr string, timeout time.Duration) (*rpchttp.HTTP, error) {
	httpClient, err := libclient.DefaultHTTPClient(addr)
	if err != nil {
		return nil, err
	}
	httpClient.Timeout = timeout
	rpcClient, err := rpchttp.NewWithClient(addr, "/websocket", httpClient)
	if err != nil {
		return nil, err
	}
	return rpcClient, nil
}
