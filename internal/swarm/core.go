// Package swarm is the message-driven coordination core: the per-neighbor
// state machine, piece-selection policy, and choke/unchoke application that
// together decide what this peer asks for and who it serves.
package swarm

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/p2pswarm/node/internal/bitfield"
	"github.com/p2pswarm/node/internal/netconn"
	"github.com/p2pswarm/node/internal/store"
	"github.com/p2pswarm/node/internal/wire"
)

// PeerCore owns every neighbor's state plus the local piece store, all
// behind one mutex. Every inbound message and every scheduler-driven
// choke/unchoke recomputation is linearized through this lock.
type PeerCore struct {
	mu sync.Mutex

	selfID    int
	store     *store.PieceStore
	numPieces int
	logger    *slog.Logger

	neighbors  map[int]*NeighborState
	preferred  map[int]bool
	optimistic *int

	everHadNeighbor bool
}

// New builds a PeerCore for selfID backed by st.
func New(selfID int, st *store.PieceStore, logger *slog.Logger) *PeerCore {
	return &PeerCore{
		selfID:    selfID,
		store:     st,
		numPieces: st.NumPieces(),
		logger:    logger,
		neighbors: make(map[int]*NeighborState),
		preferred: make(map[int]bool),
	}
}

// AddNeighbor registers a newly handshaken connection. If peerID is already
// registered the existing entry wins and the new connection is rejected —
// the spec guarantees at most one connection per unordered pair, so this
// indicates a caller bug, not a protocol event.
func (c *PeerCore) AddNeighbor(peerID int, conn *netconn.Connection) (*NeighborState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.neighbors[peerID]; exists {
		return nil, fmt.Errorf("swarm: neighbor %d already registered", peerID)
	}

	n := newNeighborState(peerID, conn)
	c.neighbors[peerID] = n
	c.everHadNeighbor = true

	return n, nil
}

// RemoveNeighbor drops peerID's entry, normally called when its reader loop
// exits. Missing ids are a no-op.
func (c *PeerCore) RemoveNeighbor(peerID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.neighbors, peerID)
	delete(c.preferred, peerID)
	if c.optimistic != nil && *c.optimistic == peerID {
		c.optimistic = nil
	}
}

// NeighborIDs returns the currently connected neighbor ids.
func (c *PeerCore) NeighborIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int, 0, len(c.neighbors))
	for id := range c.neighbors {
		ids = append(ids, id)
	}
	return ids
}

// EverHadNeighbor reports whether this peer has seen at least one neighbor
// during its lifetime, one of the swarm-completion preconditions.
func (c *PeerCore) EverHadNeighbor() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.everHadNeighbor
}

// AllNeighborsComplete reports whether every currently connected neighbor's
// remote bitfield is fully set (i.e. they all, as far as we know, hold the
// whole file).
func (c *PeerCore) AllNeighborsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.neighbors {
		if !n.hasRemoteBitfield || n.remoteBitfield.CountSet() != c.numPieces {
			return false
		}
	}
	return true
}

// Snapshot returns a point-in-time, read-only view of every neighbor, for
// the bonus monitor and for tests. It never blocks on I/O.
func (c *PeerCore) Snapshot() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.neighbors))
	for _, n := range c.neighbors {
		out = append(out, n.snapshot())
	}
	return out
}

// OnMessage is the single dispatch entry point for inbound traffic. It holds
// the core lock for the duration of processing one message, including any
// outbound sends it provokes.
func (c *PeerCore) OnMessage(peerID int, msg wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.neighbors[peerID]
	if !ok {
		return nil // unknown remote peer id: drop silently
	}

	switch msg.Type {
	case wire.Choke:
		n.peerChokingMe = true
		c.logger.Info("CHOKED by Peer", "from", n.PeerID)

	case wire.Unchoke:
		n.peerChokingMe = false
		c.logger.Info("UNCHOKED by Peer", "from", n.PeerID)
		return c.requestNext(n)

	case wire.Interested:
		n.peerInterestedInMe = true
		c.logger.Info("INTERESTED received", "from", n.PeerID)

	case wire.NotInterested:
		n.peerInterestedInMe = false
		c.logger.Info("NOT_INTERESTED received", "from", n.PeerID)

	case wire.Have:
		idx, ok := msg.ParseIndex()
		if !ok {
			return nil
		}
		c.logger.Info("HAVE received", "from", n.PeerID, "piece", idx)
		return c.handleHave(n, int(idx))

	case wire.BitfieldMsg:
		c.logger.Info("BITFIELD received", "from", n.PeerID)
		return c.handleBitfield(n, msg.Payload)

	case wire.Request:
		idx, ok := msg.ParseIndex()
		if !ok {
			return nil
		}
		return c.handleRequest(n, int(idx))

	case wire.Piece:
		idx, data, ok := msg.ParsePiece()
		if !ok {
			return nil
		}
		return c.handlePiece(n, int(idx), data)
	}

	return nil
}

func (c *PeerCore) handleHave(n *NeighborState, idx int) error {
	if !n.hasRemoteBitfield {
		n.remoteBitfield = bitfield.New(c.numPieces)
		n.hasRemoteBitfield = true
	}
	if err := n.remoteBitfield.Set(idx); err != nil {
		return nil // out-of-range index from a misbehaving remote; ignore
	}

	if !c.store.HasPiece(idx) && !n.amInterested {
		n.amInterested = true
		return n.conn.Send(wire.NewInterested())
	}
	return nil
}

func (c *PeerCore) handleBitfield(n *NeighborState, payload []byte) error {
	bf, err := bitfield.FromBytes(payload, c.numPieces)
	if err != nil {
		return nil // malformed payload: drop, connection stays open
	}
	n.remoteBitfield = bf
	n.hasRemoteBitfield = true

	remoteHasSomethingWeLack := false
	for i := 0; i < c.numPieces; i++ {
		if bf.Has(i) && !c.store.HasPiece(i) {
			remoteHasSomethingWeLack = true
			break
		}
	}

	switch {
	case remoteHasSomethingWeLack && !n.amInterested:
		n.amInterested = true
		return n.conn.Send(wire.NewInterested())
	case !remoteHasSomethingWeLack && n.amInterested:
		n.amInterested = false
		return n.conn.Send(wire.NewNotInterested())
	}
	return nil
}

func (c *PeerCore) handleRequest(n *NeighborState, idx int) error {
	if n.amChoking {
		return nil
	}
	if !c.store.HasPiece(idx) {
		return nil
	}

	data, err := c.store.ReadPiece(idx)
	if err != nil {
		c.logger.Warn("short read serving REQUEST", "to", n.PeerID, "piece", idx, "error", err)
		return nil
	}

	if err := n.conn.Send(wire.NewPiece(uint32(idx), data)); err != nil {
		return err
	}
	c.logger.Info("uploads piece to Peer", "piece", idx, "to", n.PeerID)
	return nil
}

func (c *PeerCore) handlePiece(n *NeighborState, idx int, data []byte) error {
	if err := c.store.WritePiece(idx, data); err != nil {
		c.logger.Warn("dropping malformed PIECE", "from", n.PeerID, "piece", idx, "error", err)
		return nil
	}
	n.downloadBytesWindow += int64(len(data))

	c.logger.Info("piece downloaded", "piece", idx, "from", n.PeerID, "have", c.store.CountHave(), "total", c.numPieces)

	if err := c.broadcastHaveLocked(idx); err != nil {
		return err
	}

	if c.store.CountHave() == c.numPieces {
		c.logger.Info("download complete", "peer", c.selfID)
		return nil
	}
	return c.requestNext(n)
}

// broadcastHaveLocked sends HAVE(idx) to every current neighbor, including
// the sender the piece arrived from; receivers treat redundant HAVEs as
// no-ops. Must be called with the lock held.
func (c *PeerCore) broadcastHaveLocked(idx int) error {
	msg := wire.NewHave(uint32(idx))
	for _, other := range c.neighbors {
		if err := other.conn.Send(msg); err != nil {
			c.logger.Warn("broadcast HAVE failed", "to", other.PeerID, "piece", idx, "error", err)
		}
	}
	return nil
}

// requestNext implements first-useful piece selection against n: the
// lowest index the remote holds and we don't. Must be called with the lock
// held.
func (c *PeerCore) requestNext(n *NeighborState) error {
	if n.peerChokingMe || !n.hasRemoteBitfield {
		return nil
	}

	idx, ok := firstUseful(n.remoteBitfield, c.store, c.numPieces)
	if !ok {
		if n.amInterested {
			n.amInterested = false
			return n.conn.Send(wire.NewNotInterested())
		}
		return nil
	}

	c.logger.Info("REQUEST sent", "to", n.PeerID, "piece", idx)
	return n.conn.Send(wire.NewRequest(uint32(idx)))
}

func firstUseful(remote bitfield.Bitfield, st *store.PieceStore, numPieces int) (int, bool) {
	for i := 0; i < numPieces; i++ {
		if remote.Has(i) && !st.HasPiece(i) {
			return i, true
		}
	}
	return 0, false
}

// SetPreferredNeighbors and SetOptimisticUnchokeSlot together define the
// unchoked set U = preferred ∪ {optimisticSlot}. Both are pushed by the
// ChokeScheduler under its own tick, and each recomputes and applies the
// resulting choke/unchoke deltas immediately.
func (c *PeerCore) SetPreferredNeighbors(ids []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[int]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	c.preferred = next
	c.logger.Info("preferred-neighbor change", "preferred", ids)

	c.applyUnchokedSetLocked()
}

// SetOptimisticUnchokeSlot sets or clears (nil) the optimistic slot.
func (c *PeerCore) SetOptimisticUnchokeSlot(id *int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.optimistic = id
	if id != nil {
		c.logger.Info("optimistic-unchoke change", "optimistic", *id)
	} else {
		c.logger.Info("optimistic-unchoke change", "optimistic", "none")
	}

	c.applyUnchokedSetLocked()
}

func (c *PeerCore) applyUnchokedSetLocked() {
	for id, n := range c.neighbors {
		unchoked := c.preferred[id] || (c.optimistic != nil && *c.optimistic == id)

		switch {
		case unchoked && n.amChoking:
			n.amChoking = false
			if err := n.conn.Send(wire.NewUnchoke()); err != nil {
				c.logger.Warn("send UNCHOKE failed", "to", n.PeerID, "error", err)
			}
		case !unchoked && !n.amChoking:
			n.amChoking = true
			if err := n.conn.Send(wire.NewChoke()); err != nil {
				c.logger.Warn("send CHOKE failed", "to", n.PeerID, "error", err)
			}
		}
	}
}

// InterestedNeighborIDs returns the ids of neighbors currently marked
// peerInterestedInMe, the candidate pool the ChokeScheduler ranks from.
func (c *PeerCore) InterestedNeighborIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []int
	for id, n := range c.neighbors {
		if n.peerInterestedInMe {
			ids = append(ids, id)
		}
	}
	return ids
}

// ChokedInterestedNeighborIDs returns ids of neighbors that are both
// interested in us and currently choked by us — the optimistic-slot pool.
func (c *PeerCore) ChokedInterestedNeighborIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []int
	for id, n := range c.neighbors {
		if n.peerInterestedInMe && n.amChoking {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetAndResetDownloadStats returns each neighbor's accumulated download
// byte count since the last call and resets it to zero.
func (c *PeerCore) GetAndResetDownloadStats() map[int]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make(map[int]int64, len(c.neighbors))
	for id, n := range c.neighbors {
		stats[id] = n.downloadBytesWindow
		n.downloadBytesWindow = 0
	}
	return stats
}

// SendBitfield sends the local bitfield to a single neighbor, used right
// after handshake completion when countHave() > 0.
func (c *PeerCore) SendBitfield(peerID int) error {
	c.mu.Lock()
	n, ok := c.neighbors[peerID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("swarm: unknown neighbor %d", peerID)
	}
	return n.conn.Send(wire.NewBitfield(c.store.RawBitfield()))
}

// CloseAll closes every currently registered connection, used on shutdown.
// It does not remove the neighbor entries; each connection's reader loop is
// expected to notice the close and call RemoveNeighbor itself.
func (c *PeerCore) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.neighbors {
		n.conn.Close()
	}
}
