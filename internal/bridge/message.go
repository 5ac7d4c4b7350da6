package bridge

// Chain identifies one side of a cross-chain message.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainICP      Chain = "icp"
)

func (c Chain) valid() bool {
	return c == ChainEthereum || c == ChainICP
}

// MessageType selects which HTLC lifecycle event a Message reports.
type MessageType string

const (
	MessageCreate   MessageType = "create"
	MessageComplete MessageType = "complete"
	MessageRefund   MessageType = "refund"
)

func (m MessageType) valid() bool {
	return m == MessageCreate || m == MessageComplete || m == MessageRefund
}

// Message is an inbound cross-chain notification about HTLC state on the
// counterpart chain.
type Message struct {
	OrderID     string
	MessageType MessageType
	SourceChain Chain
	TargetChain Chain
	Timestamp   uint64
	Payload     []byte
}

// verify checks m against the freshness and enum rules. now is the
// coordinator's current wall-clock second.
func verify(m Message, now uint64, freshnessWindow uint64) bool {
	if m.Timestamp > now {
		return false
	}
	if now-m.Timestamp > freshnessWindow {
		return false
	}
	if !m.MessageType.valid() {
		return false
	}
	if !m.SourceChain.valid() || !m.TargetChain.valid() {
		return false
	}
	return true
}
