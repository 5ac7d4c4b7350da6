package bridge

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hostbridge/coordinator/pkg/logging"
)

// RPCSubmitter hands transactions to a JSON-RPC endpoint that owns the
// signing key for the host's EVM identity (an unlocked dev node or a
// threshold-signing relay standing in for one). It never signs locally.
type RPCSubmitter struct {
	client *ethclient.Client
	log    *logging.Logger
}

// DialRPCSubmitter connects to an Ethereum JSON-RPC endpoint.
func DialRPCSubmitter(ctx context.Context, rpcURL string) (*RPCSubmitter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return &RPCSubmitter{client: client, log: logging.Default().WithPrefix("bridge.rpc")}, nil
}

// Close releases the underlying RPC connection.
func (s *RPCSubmitter) Close() {
	s.client.Close()
}

// Submit sends an unsigned transaction object via eth_sendTransaction,
// relying on the RPC endpoint to own the signing key.
func (s *RPCSubmitter) Submit(ctx context.Context, tx EthereumTransaction) (string, error) {
	var txHash string
	params := map[string]interface{}{
		"to":       tx.To.Hex(),
		"value":    tx.Value,
		"data":     tx.Data,
		"gas":      fmt.Sprintf("0x%x", tx.Gas),
		"gasPrice": tx.GasPrice,
		"nonce":    fmt.Sprintf("0x%x", tx.Nonce),
	}
	if err := s.client.Client().CallContext(ctx, &txHash, "eth_sendTransaction", params); err != nil {
		return "", fmt.Errorf("eth_sendTransaction: %w", err)
	}
	s.log.Info("submitted ethereum transaction", "to", tx.To.Hex(), "tx_hash", txHash)
	return txHash, nil
}
