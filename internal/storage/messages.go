package storage

import (
	"github.com/hostbridge/coordinator/internal/bridge"
)

// SaveCrossChainMessage upserts the last-processed cross-chain message
// for an order_id, mirroring bridge.Dispatcher's in-memory message log.
func (s *Storage) SaveCrossChainMessage(m bridge.Message, receivedAt uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO cross_chain_messages (
			order_id, message_type, source_chain, target_chain, timestamp, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			message_type = excluded.message_type,
			source_chain = excluded.source_chain,
			target_chain = excluded.target_chain,
			timestamp = excluded.timestamp,
			payload = excluded.payload,
			received_at = excluded.received_at
	`
	_, err := s.db.Exec(query,
		m.OrderID, string(m.MessageType), string(m.SourceChain), string(m.TargetChain),
		m.Timestamp, m.Payload, receivedAt,
	)
	return err
}

// GetCrossChainMessage retrieves the last processed message for an order_id.
func (s *Storage) GetCrossChainMessage(orderID string) (bridge.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m                           bridge.Message
		messageType, source, target string
	)
	row := s.db.QueryRow(`
		SELECT order_id, message_type, source_chain, target_chain, timestamp, payload
		FROM cross_chain_messages WHERE order_id = ?
	`, orderID)
	if err := row.Scan(&m.OrderID, &messageType, &source, &target, &m.Timestamp, &m.Payload); err != nil {
		return bridge.Message{}, err
	}
	m.MessageType = bridge.MessageType(messageType)
	m.SourceChain = bridge.Chain(source)
	m.TargetChain = bridge.Chain(target)
	return m, nil
}

// SaveResolver persists an authorized-resolver flag, mirroring
// guard.ResolverTable's idempotent add/remove.
func (s *Storage) SaveResolver(principal string, authorized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO resolvers (principal, authorized) VALUES (?, ?)
		ON CONFLICT(principal) DO UPDATE SET authorized = excluded.authorized
	`, principal, boolToInt(authorized))
	return err
}

// ListResolvers returns every resolver entry ever recorded, keyed by
// principal, for restoring guard.ResolverTable on startup.
func (s *Storage) ListResolvers() (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT principal, authorized FROM resolvers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var principal string
		var authorized int
		if err := rows.Scan(&principal, &authorized); err != nil {
			return nil, err
		}
		out[principal] = authorized != 0
	}
	return out, rows.Err()
}
