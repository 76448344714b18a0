package swarm

import (
	"github.com/p2pswarm/node/internal/bitfield"
	"github.com/p2pswarm/node/internal/netconn"
)

// NeighborState is the per-remote-peer bookkeeping created once a handshake
// completes and destroyed when the connection's reader loop exits.
type NeighborState struct {
	PeerID int
	conn   *netconn.Connection

	remoteBitfield    bitfield.Bitfield
	hasRemoteBitfield bool

	amChoking          bool
	peerChokingMe      bool
	amInterested       bool
	peerInterestedInMe bool

	downloadBytesWindow int64
}

// newNeighborState creates a NeighborState in the spec's initial state:
// amChoking=true, peerChokingMe=true, amInterested=false,
// peerInterestedInMe=false.
func newNeighborState(peerID int, conn *netconn.Connection) *NeighborState {
	return &NeighborState{
		PeerID:        peerID,
		conn:          conn,
		amChoking:     true,
		peerChokingMe: true,
	}
}

// Snapshot is a read-only view of one neighbor's state, used by the swarm
// monitor and tests; it never exposes the live connection handle.
type Snapshot struct {
	PeerID              int
	HasRemoteBitfield   bool
	RemotePieceCount    int
	AmChoking           bool
	PeerChokingMe       bool
	AmInterested        bool
	PeerInterestedInMe  bool
	DownloadBytesWindow int64
}

func (n *NeighborState) snapshot() Snapshot {
	remoteCount := 0
	if n.hasRemoteBitfield {
		remoteCount = n.remoteBitfield.CountSet()
	}
	return Snapshot{
		PeerID:              n.PeerID,
		HasRemoteBitfield:   n.hasRemoteBitfield,
		RemotePieceCount:    remoteCount,
		AmChoking:           n.amChoking,
		PeerChokingMe:       n.peerChokingMe,
		AmInterested:        n.amInterested,
		PeerInterestedInMe:  n.peerInterestedInMe,
		DownloadBytesWindow: n.downloadBytesWindow,
	}
}
