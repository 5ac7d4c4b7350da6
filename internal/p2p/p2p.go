// Package p2p re-announces committed HTLC and Fusion domain events over
// libp2p gossipsub for read-replica nodes, and runs DHT-based discovery
// to find them. It holds no authoritative state; the coordinator package
// remains the source of truth, mutated only by direct calls.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"

	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/pkg/logging"
)

const (
	dhtPrefix     = "/hostbridge"
	discoveryNS   = "hostbridge-coordinator"
	eventTopicFmt = "hostbridge-domain-events"
)

// EventType mirrors the domain event kinds published by the swap and
// fusion engines.
type EventType string

const (
	EventSwapCreated    EventType = "swap_created"
	EventSwapCompleted  EventType = "swap_completed"
	EventSwapRefunded   EventType = "swap_refunded"
	EventOrderCreated   EventType = "order_created"
	EventOrderFilled    EventType = "order_filled"
	EventOrderCancelled EventType = "order_cancelled"
)

// Envelope is the wire format published to the gossipsub topic.
type Envelope struct {
	Type    EventType `json:"type"`
	OrderID string    `json:"order_id"`
	At      uint64    `json:"at"`
}

// Announcer publishes domain events over gossipsub and discovers peers
// via a Kademlia DHT.
type Announcer struct {
	host  host.Host
	dht   *dht.IpfsDHT
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	routingDisc *drouting.RoutingDiscovery
	log         *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	onEvent func(Envelope)
}

// New creates the libp2p host, joins the domain-event topic and starts
// DHT bootstrap/discovery.
func New(ctx context.Context, cfg config.P2PConfig) (*Announcer, error) {
	ctx, cancel := context.WithCancel(ctx)

	a := &Announcer{
		log:    logging.Default().WithPrefix("p2p"),
		ctx:    ctx,
		cancel: cancel,
	}

	privKey, err := loadOrCreateHostKey(cfg.KeyFile)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load/create p2p identity: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.ListenAddrs))
	for _, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen address %s: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
		libp2p.NATPortMap(),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}
	a.host = h

	kad, err := dht.New(ctx, h, dht.Mode(dht.ModeAutoServer), dht.ProtocolPrefix(protocol.ID(dhtPrefix)))
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create dht: %w", err)
	}
	if err := kad.Bootstrap(ctx); err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("bootstrap dht: %w", err)
	}
	a.dht = kad
	a.routingDisc = drouting.NewRoutingDiscovery(kad)

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithPeerExchange(true), pubsub.WithFloodPublish(true))
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}
	a.ps = ps

	topic, err := ps.Join(eventTopicFmt)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("join topic: %w", err)
	}
	a.topic = topic

	sub, err := topic.Subscribe()
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("subscribe topic: %w", err)
	}
	a.sub = sub

	for _, addrStr := range cfg.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			a.log.Warn("invalid bootstrap address", "addr", addrStr, "error", err)
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			a.log.Warn("invalid bootstrap peer info", "addr", addrStr, "error", err)
			continue
		}
		go func(pi peer.AddrInfo) {
			dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
			defer dialCancel()
			if err := h.Connect(dialCtx, pi); err != nil {
				a.log.Warn("failed to connect to bootstrap peer", "peer", pi.ID.String(), "error", err)
			}
		}(*pi)
	}

	go dutil.Advertise(ctx, a.routingDisc, discoveryNS)
	go a.discoverPeers()
	go a.readLoop()

	return a, nil
}

// OnEvent registers a handler invoked for every event received from
// peers (not for ones this node published itself).
func (a *Announcer) OnEvent(fn func(Envelope)) {
	a.mu.Lock()
	a.onEvent = fn
	a.mu.Unlock()
}

// Publish announces a committed domain event to the network.
func (a *Announcer) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return a.topic.Publish(ctx, data)
}

func (a *Announcer) readLoop() {
	for {
		msg, err := a.sub.Next(a.ctx)
		if err != nil {
			return // context cancelled or subscription closed
		}
		if msg.ReceivedFrom == a.host.ID() {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			a.log.Warn("discarding malformed domain event", "error", err)
			continue
		}
		a.mu.RLock()
		handler := a.onEvent
		a.mu.RUnlock()
		if handler != nil {
			handler(env)
		}
	}
}

func (a *Announcer) discoverPeers() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			peers, err := dutil.FindPeers(a.ctx, a.routingDisc, discoveryNS)
			if err != nil {
				continue
			}
			for _, pi := range peers {
				if pi.ID == a.host.ID() {
					continue
				}
				if a.host.Network().Connectedness(pi.ID) == network.Connected {
					continue
				}
				go func(pi peer.AddrInfo) {
					dialCtx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
					defer cancel()
					a.host.Connect(dialCtx, pi)
				}(pi)
			}
		}
	}
}

// PeerCount returns the number of connected peers.
func (a *Announcer) PeerCount() int {
	return len(a.host.Network().Peers())
}

// Close shuts the node down.
func (a *Announcer) Close() error {
	a.cancel()
	if a.dht != nil {
		a.dht.Close()
	}
	return a.host.Close()
}

func loadOrCreateHostKey(keyPath string) (crypto.PrivKey, error) {
	if keyPath == "" {
		priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return crypto.UnmarshalPrivateKey(data)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, err
	}
	return priv, nil
}
