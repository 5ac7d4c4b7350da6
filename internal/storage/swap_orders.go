package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/swapengine"
)

var ErrOrderNotFound = errors.New("order not found in storage")

// SaveSwapOrder upserts a swap order snapshot, keyed by order_id.
func (s *Storage) SaveSwapOrder(o swapengine.SwapOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO swap_orders (
			order_id, ethereum_sender, recipient, amount, original_amount,
			hashlock, timelock, completed, refunded, created_at,
			cross_chain_id, transfer_block_height
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			amount = excluded.amount,
			completed = excluded.completed,
			refunded = excluded.refunded,
			cross_chain_id = excluded.cross_chain_id,
			transfer_block_height = excluded.transfer_block_height
	`
	_, err := s.db.Exec(query,
		o.OrderID,
		o.EthereumSender,
		string(o.Recipient),
		o.Amount,
		o.OriginalAmount,
		hex.EncodeToString(o.Hashlock[:]),
		o.Timelock,
		boolToInt(o.Completed),
		boolToInt(o.Refunded),
		o.CreatedAt,
		o.CrossChainID,
		o.TransferBlockHeight,
	)
	return err
}

// GetSwapOrder retrieves a persisted swap order by order_id.
func (s *Storage) GetSwapOrder(orderID string) (swapengine.SwapOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT order_id, ethereum_sender, recipient, amount, original_amount,
			hashlock, timelock, completed, refunded, created_at,
			cross_chain_id, transfer_block_height
		FROM swap_orders WHERE order_id = ?
	`, orderID)
	return scanSwapOrder(row)
}

// ListSwapOrders returns every persisted swap order, oldest first.
func (s *Storage) ListSwapOrders() ([]swapengine.SwapOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT order_id, ethereum_sender, recipient, amount, original_amount,
			hashlock, timelock, completed, refunded, created_at,
			cross_chain_id, transfer_block_height
		FROM swap_orders ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []swapengine.SwapOrder
	for rows.Next() {
		o, err := scanSwapOrderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSwapOrder(row *sql.Row) (swapengine.SwapOrder, error) {
	return scanSwapOrderInto(row)
}

func scanSwapOrderRows(rows *sql.Rows) (swapengine.SwapOrder, error) {
	return scanSwapOrderInto(rows)
}

func scanSwapOrderInto(sc scannable) (swapengine.SwapOrder, error) {
	var (
		o                     swapengine.SwapOrder
		recipient             string
		hashlockHex           string
		completed, refunded   int
		createdAt             int64
		crossChainID          sql.NullString
	)
	err := sc.Scan(
		&o.OrderID,
		&o.EthereumSender,
		&recipient,
		&o.Amount,
		&o.OriginalAmount,
		&hashlockHex,
		&o.Timelock,
		&completed,
		&refunded,
		&createdAt,
		&crossChainID,
		&o.TransferBlockHeight,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return swapengine.SwapOrder{}, ErrOrderNotFound
		}
		return swapengine.SwapOrder{}, err
	}

	o.Recipient = identity.Principal(recipient)
	o.Completed = completed != 0
	o.Refunded = refunded != 0
	o.CreatedAt = uint64(createdAt)
	o.CrossChainID = crossChainID.String

	raw, err := hex.DecodeString(hashlockHex)
	if err != nil || len(raw) != 32 {
		return swapengine.SwapOrder{}, errors.New("corrupt hashlock in storage")
	}
	copy(o.Hashlock[:], raw)

	return o, nil
}
