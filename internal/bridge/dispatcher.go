// Package bridge implements the cross-chain dispatcher: inbound message
// verification/routing and outbound EVM transaction submission, adapted
// from the KlingonHTLC Ethereum client and the cross-chain swap
// coordinator's chain-pairing logic.
package bridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/swapengine"
	"github.com/hostbridge/coordinator/pkg/helpers"
	"github.com/hostbridge/coordinator/pkg/logging"
)

// EthereumTransaction mirrors the unsigned JSON transaction object the
// bridge hands off to the EVM sub-program for signing and broadcast.
type EthereumTransaction struct {
	To       common.Address `json:"to"`
	Value    string         `json:"value"`
	Data     string         `json:"data"`
	Gas      uint64         `json:"gas"`
	GasPrice string         `json:"gasPrice"`
	Nonce    uint64         `json:"nonce"`
}

// EVMSubmitter hands an EthereumTransaction off to whatever process owns
// the host's EVM signing key and broadcasts it. RPCSubmitter is the
// production implementation; tests use a fake.
type EVMSubmitter interface {
	Submit(ctx context.Context, tx EthereumTransaction) (txHash string, err error)
}

// Dispatcher is the cross-chain message router and outbound transaction
// builder described by SwapOrder create/complete/refund events. It
// satisfies swapengine.BridgeEmitter.
type Dispatcher struct {
	mu         sync.Mutex
	cfg        config.BridgeConfig
	submitter  EVMSubmitter
	clock      func() uint64
	log        *logging.Logger
	messageLog map[string]Message // keyed by order_id, last message wins
}

// New builds a Dispatcher. submitter may be nil if cfg.ChainFusionEnabled
// is false; SubmitEthereumTransaction will reject before touching it.
func New(cfg config.BridgeConfig, submitter EVMSubmitter, clock func() uint64) *Dispatcher {
	return &Dispatcher{
		cfg:        cfg,
		submitter:  submitter,
		clock:      clock,
		log:        logging.Default().WithPrefix("bridge"),
		messageLog: make(map[string]Message),
	}
}

// VerifyMessage implements verify_cross_chain_message: timestamp must not
// be in the future, must fall within the freshness window, and the
// message/chain enums must be recognized.
func (d *Dispatcher) VerifyMessage(m Message) bool {
	d.mu.Lock()
	window := d.cfg.MessageFreshnessWindow
	d.mu.Unlock()
	return verify(m, d.clock(), window)
}

// SetChainFusionEnabled toggles outbound EVM emission, mirroring
// swapengine.Engine.SetChainFusionEnabled so both halves of the bridge
// agree after set_chain_fusion_enabled.
func (d *Dispatcher) SetChainFusionEnabled(enabled bool) {
	d.mu.Lock()
	d.cfg.ChainFusionEnabled = enabled
	d.mu.Unlock()
}

// SetEthereumContractAddress updates the outbound transaction destination,
// the Go expression of set_ethereum_contract_address.
func (d *Dispatcher) SetEthereumContractAddress(addr string) {
	d.mu.Lock()
	d.cfg.EthereumContractAddress = addr
	d.mu.Unlock()
}

// Config returns a snapshot of the dispatcher's current bridge policy.
func (d *Dispatcher) Config() config.BridgeConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// ProcessMessage implements process_cross_chain_message: verify, then
// upsert into the message log keyed by order_id, then route to a
// logging-stub handler. The HTLC engine's authoritative state is never
// mutated here; direct calls own that.
func (d *Dispatcher) ProcessMessage(ctx context.Context, m Message) error {
	if !d.VerifyMessage(m) {
		return ErrInvalidMessage
	}

	d.mu.Lock()
	d.messageLog[m.OrderID] = m
	d.mu.Unlock()

	switch m.MessageType {
	case MessageCreate:
		d.log.Info("cross-chain message: create", "order_id", m.OrderID, "source_chain", m.SourceChain)
	case MessageComplete:
		d.log.Info("cross-chain message: complete", "order_id", m.OrderID, "source_chain", m.SourceChain)
	case MessageRefund:
		d.log.Info("cross-chain message: refund", "order_id", m.OrderID, "source_chain", m.SourceChain)
	default:
		return ErrUnsupportedType
	}
	return nil
}

// MessageFor returns the last processed message for an order_id, if any.
func (d *Dispatcher) MessageFor(orderID string) (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.messageLog[orderID]
	return m, ok
}

// SubmitEthereumTransaction implements submit_ethereum_transaction: builds
// the unsigned transaction object and hands it to the EVM sub-program.
func (d *Dispatcher) SubmitEthereumTransaction(ctx context.Context, payload []byte, to common.Address, value *big.Int) (string, error) {
	cfg := d.Config()
	if !cfg.ChainFusionEnabled {
		return "", ErrBridgeDisabled
	}
	if cfg.EthereumContractAddress == "" {
		return "", ErrNoDestination
	}
	if d.submitter == nil {
		return "", &BridgeCallFailedError{Reason: "no EVM sub-program configured"}
	}

	tx := EthereumTransaction{
		To:       to,
		Value:    helpers.BigIntToHex(value),
		Data:     helpers.BytesToHex(payload),
		Gas:      100_000,
		GasPrice: helpers.BigIntToHex(big.NewInt(1_000_000_000)), // 1 gwei
		Nonce:    0,
	}

	hash, err := d.submitter.Submit(ctx, tx)
	if err != nil {
		return "", &BridgeCallFailedError{Reason: err.Error(), Err: err}
	}
	return hash, nil
}

// EmitCreate, EmitComplete and EmitRefund implement swapengine.BridgeEmitter.
// They are fire-and-forget from the engine's perspective: a failure here
// is surfaced to the caller of the emitting method but never reverts the
// already-committed HTLC state transition.

func (d *Dispatcher) EmitCreate(ctx context.Context, order swapengine.SwapOrder) error {
	payload := []byte(fmt.Sprintf("create:%s:%d", order.OrderID, order.Amount))
	_, err := d.SubmitEthereumTransaction(ctx, payload, d.contractAddress(), new(big.Int))
	return err
}

func (d *Dispatcher) EmitComplete(ctx context.Context, order swapengine.SwapOrder, preimage []byte) error {
	payload := []byte(fmt.Sprintf("complete:%s:%s", order.OrderID, hex.EncodeToString(preimage)))
	_, err := d.SubmitEthereumTransaction(ctx, payload, d.contractAddress(), new(big.Int))
	return err
}

func (d *Dispatcher) EmitRefund(ctx context.Context, order swapengine.SwapOrder) error {
	payload := []byte(fmt.Sprintf("refund:%s", order.OrderID))
	_, err := d.SubmitEthereumTransaction(ctx, payload, d.contractAddress(), new(big.Int))
	return err
}

func (d *Dispatcher) contractAddress() common.Address {
	return common.HexToAddress(d.Config().EthereumContractAddress)
}

// IsAuthorizedSender checks an inbound Ethereum sender address against the
// allow-list. An empty list allows all senders (off by default).
func (d *Dispatcher) IsAuthorizedSender(sender string) bool {
	cfg := d.Config()
	if len(cfg.AuthorizedEthereumSenders) == 0 {
		return true
	}
	want := common.HexToAddress(sender)
	for _, s := range cfg.AuthorizedEthereumSenders {
		if common.HexToAddress(s) == want {
			return true
		}
	}
	return false
}
