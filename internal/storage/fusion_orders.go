package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/hostbridge/coordinator/internal/fusion"
	"github.com/hostbridge/coordinator/internal/identity"
)

// bigText renders a possibly-nil *big.Int as its decimal string, "0" for
// nil, matching the fusion_orders TEXT columns that hold u128-range
// amounts beyond what an SQLite INTEGER column can carry.
func bigText(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseBigText(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("corrupt fusion amount in storage")
	}
	return n, nil
}

// SaveFusionOrder upserts a Fusion order snapshot, keyed by id.
func (s *Storage) SaveFusionOrder(o fusion.OrderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hashlockHex sql.NullString
	var revealed int
	var revealTime uint64
	if o.Hashlock != nil {
		hashlockHex = sql.NullString{String: hex.EncodeToString(o.Hashlock.SecretHash[:]), Valid: true}
		revealed = boolToInt(o.Hashlock.Revealed)
		revealTime = o.Hashlock.RevealTime
	}

	var finality, exclusive, cancelTimeout uint64
	if o.Timelock != nil {
		finality = o.Timelock.FinalityLockDuration
		exclusive = o.Timelock.ExclusiveWithdrawDuration
		cancelTimeout = o.Timelock.CancellationTimeout
	}

	query := `
		INSERT INTO fusion_orders (
			id, src_mint, dst_mint, maker, src_amount, min_dst_amount,
			estimated_dst_amount, expiration_time,
			auction_start_time, auction_end_time, auction_start_price, auction_end_price,
			cancellation_auction_secs,
			protocol_fee_bps, integrator_fee_bps, surplus_bps, max_cancel_premium,
			hashlock_secret_hash, hashlock_revealed, hashlock_reveal_time,
			timelock_finality_secs, timelock_exclusive_secs, timelock_cancel_secs,
			status, status_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			src_amount = excluded.src_amount,
			hashlock_revealed = excluded.hashlock_revealed,
			hashlock_reveal_time = excluded.hashlock_reveal_time,
			status = excluded.status,
			status_reason = excluded.status_reason
	`
	_, err := s.db.Exec(query,
		o.ID, string(o.SrcMint), string(o.DstMint), string(o.Maker),
		bigText(o.SrcAmount), bigText(o.MinDstAmount), bigText(o.EstimatedDstAmount), o.ExpirationTime,
		o.Auction.StartTime, o.Auction.EndTime, bigText(o.Auction.StartPrice), bigText(o.Auction.EndPrice),
		o.CancellationAuctionSecs,
		o.Fee.ProtocolFeeBPS, o.Fee.IntegratorFeeBPS, o.Fee.SurplusBPS, bigText(o.Fee.MaxCancelPremium),
		hashlockHex, revealed, revealTime,
		finality, exclusive, cancelTimeout,
		string(o.Status.Kind), o.Status.Reason, o.CreatedAt,
	)
	return err
}

// DeleteFusionOrder removes an order once it is fully filled or cancelled.
func (s *Storage) DeleteFusionOrder(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM fusion_orders WHERE id = ?`, id)
	return err
}

// ListFusionOrders returns every persisted Fusion order.
func (s *Storage) ListFusionOrders() ([]fusion.OrderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, src_mint, dst_mint, maker, src_amount, min_dst_amount,
			estimated_dst_amount, expiration_time,
			auction_start_time, auction_end_time, auction_start_price, auction_end_price,
			cancellation_auction_secs,
			protocol_fee_bps, integrator_fee_bps, surplus_bps, max_cancel_premium,
			hashlock_secret_hash, hashlock_revealed, hashlock_reveal_time,
			timelock_finality_secs, timelock_exclusive_secs, timelock_cancel_secs,
			status, status_reason, created_at
		FROM fusion_orders ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fusion.OrderConfig
	for rows.Next() {
		o, err := scanFusionOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanFusionOrder(rows *sql.Rows) (fusion.OrderConfig, error) {
	var (
		o                       fusion.OrderConfig
		srcMint, dstMint, maker string
		srcAmount, minDst, estDst, startPrice, endPrice, maxCancelPremium string
		hashlockHex             sql.NullString
		hashlockRevealed        int
		hashlockRevealTime      uint64
		finality, exclusive, cancelTimeout uint64
		statusKind, statusReason sql.NullString
	)

	err := rows.Scan(
		&o.ID, &srcMint, &dstMint, &maker, &srcAmount, &minDst,
		&estDst, &o.ExpirationTime,
		&o.Auction.StartTime, &o.Auction.EndTime, &startPrice, &endPrice,
		&o.CancellationAuctionSecs,
		&o.Fee.ProtocolFeeBPS, &o.Fee.IntegratorFeeBPS, &o.Fee.SurplusBPS, &maxCancelPremium,
		&hashlockHex, &hashlockRevealed, &hashlockRevealTime,
		&finality, &exclusive, &cancelTimeout,
		&statusKind, &statusReason, &o.CreatedAt,
	)
	if err != nil {
		return fusion.OrderConfig{}, err
	}

	o.SrcMint = identity.Principal(srcMint)
	o.DstMint = identity.Principal(dstMint)
	o.Maker = identity.Principal(maker)
	o.Status = fusion.OrderStatus{Kind: fusion.StatusKind(statusKind.String), Reason: statusReason.String}

	for _, amt := range []struct {
		dst **big.Int
		raw string
	}{
		{&o.SrcAmount, srcAmount},
		{&o.MinDstAmount, minDst},
		{&o.EstimatedDstAmount, estDst},
		{&o.Auction.StartPrice, startPrice},
		{&o.Auction.EndPrice, endPrice},
		{&o.Fee.MaxCancelPremium, maxCancelPremium},
	} {
		n, err := parseBigText(amt.raw)
		if err != nil {
			return fusion.OrderConfig{}, err
		}
		*amt.dst = n
	}

	if hashlockHex.Valid {
		raw, err := hex.DecodeString(hashlockHex.String)
		if err != nil || len(raw) != 32 {
			return fusion.OrderConfig{}, errors.New("corrupt fusion hashlock in storage")
		}
		hl := &fusion.HashLock{Revealed: hashlockRevealed != 0, RevealTime: hashlockRevealTime}
		copy(hl.SecretHash[:], raw)
		o.Hashlock = hl
	}

	if finality != 0 || exclusive != 0 || cancelTimeout != 0 {
		o.Timelock = &fusion.TimeLock{
			FinalityLockDuration:      finality,
			ExclusiveWithdrawDuration: exclusive,
			CancellationTimeout:       cancelTimeout,
			CreatedAt:                 o.CreatedAt,
		}
	}

	return o, nil
}
