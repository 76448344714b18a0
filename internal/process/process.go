// Package process wires every other package together into one running
// peer: it listens, dials earlier-ranked neighbors, fans out per-connection
// reader loops, runs the choke scheduler, and watches for swarm completion.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p2pswarm/node/internal/choke"
	"github.com/p2pswarm/node/internal/config"
	"github.com/p2pswarm/node/internal/monitor"
	"github.com/p2pswarm/node/internal/netconn"
	"github.com/p2pswarm/node/internal/store"
	"github.com/p2pswarm/node/internal/swarm"
	"github.com/p2pswarm/node/internal/wire"
)

const (
	dialMaxAttempts  = 6
	dialInitialDelay = 250 * time.Millisecond
	dialMaxDelay     = 8 * time.Second

	pollInterval    = 2 * time.Second
	shutdownGraceOn = 10 * time.Second
)

// PeerProcess is one running node's lifecycle: everything needed to build
// it is frozen at construction time per the roster and config files.
type PeerProcess struct {
	selfID  int
	me      config.PeerRecord
	roster  []config.PeerRecord
	common  config.CommonConfig
	workdir string

	logger *slog.Logger

	store     *store.PieceStore
	core      *swarm.PeerCore
	scheduler *choke.Scheduler

	listener net.Listener
}

// New loads Common.cfg and PeerInfo.cfg from workdir, builds the piece
// store for selfID, and wires the swarm core and scheduler. It does not
// start listening or dialing; call Run for that.
func New(workdir string, selfID int, logger *slog.Logger) (*PeerProcess, error) {
	common, err := config.LoadCommon(filepath.Join(workdir, "Common.cfg"), logger)
	if err != nil {
		return nil, err
	}
	roster, err := config.LoadPeers(filepath.Join(workdir, "PeerInfo.cfg"))
	if err != nil {
		return nil, err
	}

	var me *config.PeerRecord
	for i := range roster {
		if roster[i].PeerID == selfID {
			me = &roster[i]
			break
		}
	}
	if me == nil {
		return nil, fmt.Errorf("process: peer id %d not found in roster", selfID)
	}

	meta, err := store.NewFileMeta(common.FileName, common.FileSize, common.PieceSize)
	if err != nil {
		return nil, err
	}

	st, err := store.New(workdir, selfID, meta, me.HasFile)
	if err != nil {
		return nil, err
	}

	core := swarm.New(selfID, st, logger)
	scheduler := choke.New(core, logger, common.NumPreferredNeighbors,
		time.Duration(common.UnchokingInterval)*time.Second,
		time.Duration(common.OptimisticUnchokingInterval)*time.Second)

	logger.Info("peer initialized", "numPieces", meta.NumPieces(), "totalPeers", len(roster))

	return &PeerProcess{
		selfID:    selfID,
		me:        *me,
		roster:    roster,
		common:    common,
		workdir:   workdir,
		logger:    logger,
		store:     st,
		core:      core,
		scheduler: scheduler,
	}, nil
}

// Run listens, dials earlier-ranked peers, and blocks until the swarm
// converges or ctx is canceled.
func (p *PeerProcess) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", p.me.Host, p.me.Port))
	if err != nil {
		return fmt.Errorf("process: listen on %s:%d: %w", p.me.Host, p.me.Port, err)
	}
	p.listener = ln
	p.logger.Info("listening", "host", p.me.Host, "port", p.me.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		p.listener.Close()
		p.core.CloseAll()
		return nil
	})

	g.Go(func() error { return p.acceptLoop(gctx, g) })

	for _, peer := range p.roster {
		if peer.PeerID >= p.selfID {
			continue
		}
		peer := peer
		g.Go(func() error { return p.dialAndServe(gctx, g, peer) })
	}

	p.scheduler.Start(gctx)

	g.Go(func() error {
		err := p.pollUntilComplete(gctx)
		if err == nil {
			// Swarm converged: tear everything else down.
			return errStopped
		}
		return err
	})

	err = g.Wait()
	p.scheduler.Stop()

	if err != nil && err != errStopped {
		return err
	}

	p.logger.Info("shutdown")
	return nil
}

// SelfID returns this process's peer id.
func (p *PeerProcess) SelfID() int {
	return p.selfID
}

// StatsSource builds the poll adapter the monitor dashboard uses to read
// this process's live state, without giving the dashboard direct access to
// the store or core.
func (p *PeerProcess) StatsSource() monitor.StatsSource {
	return monitor.StatsSource{
		PeerID:    p.selfID,
		CountHave: p.store.CountHave,
		NumPieces: p.store.NumPieces,
		Snapshot:  p.core.Snapshot,
	}
}

// errStopped is a sentinel used internally to cancel the errgroup's shared
// context once the swarm has converged, without surfacing a real error.
var errStopped = fmt.Errorf("process: swarm converged")

func (p *PeerProcess) acceptLoop(ctx context.Context, g *errgroup.Group) error {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("process: accept: %w", err)
		}

		g.Go(func() error {
			p.handleIncoming(ctx, conn)
			return nil
		})
	}
}

func (p *PeerProcess) handleIncoming(ctx context.Context, raw net.Conn) {
	c := netconn.New(raw)

	h, err := c.ReceiveHandshake()
	if err != nil {
		p.logger.Warn("bad handshake on incoming connection", "error", err)
		c.Close()
		return
	}

	remoteID := int(h.PeerID)
	p.logger.Info("is connected from Peer", "from", remoteID)

	if err := c.SendHandshake(wire.NewHandshake(uint32(p.selfID))); err != nil {
		p.logger.Warn("failed to send handshake", "to", remoteID, "error", err)
		c.Close()
		return
	}

	p.registerAndServe(ctx, remoteID, c)
}

func (p *PeerProcess) dialAndServe(ctx context.Context, g *errgroup.Group, peer config.PeerRecord) error {
	addr := fmt.Sprintf("%s:%d", peer.Host, peer.Port)

	var raw net.Conn
	err := retryDial(ctx, func(ctx context.Context) error {
		var dialErr error
		var d net.Dialer
		raw, dialErr = d.DialContext(ctx, "tcp", addr)
		return dialErr
	})
	if err != nil {
		p.logger.Warn("failed to connect to peer", "peer", peer.PeerID, "error", err)
		return nil
	}

	c := netconn.New(raw)
	p.logger.Info("makes a connection to Peer", "to", peer.PeerID)

	if err := c.SendHandshake(wire.NewHandshake(uint32(p.selfID))); err != nil {
		p.logger.Warn("failed to send handshake", "to", peer.PeerID, "error", err)
		c.Close()
		return nil
	}

	h, err := c.ReceiveHandshake()
	if err != nil {
		p.logger.Warn("bad handshake from peer", "peer", peer.PeerID, "error", err)
		c.Close()
		return nil
	}
	if int(h.PeerID) != peer.PeerID {
		p.logger.Warn("handshake mismatch", "expected", peer.PeerID, "got", h.PeerID)
		c.Close()
		return nil
	}

	p.registerAndServe(ctx, peer.PeerID, c)
	return nil
}

// registerAndServe adds the neighbor, sends an initial BITFIELD if we have
// anything, and runs the per-connection reader loop until it exits.
func (p *PeerProcess) registerAndServe(ctx context.Context, remoteID int, c *netconn.Connection) {
	if _, err := p.core.AddNeighbor(remoteID, c); err != nil {
		p.logger.Warn("duplicate neighbor registration", "peer", remoteID, "error", err)
		c.Close()
		return
	}

	if p.store.CountHave() > 0 {
		if err := p.core.SendBitfield(remoteID); err != nil {
			p.logger.Warn("failed to send initial bitfield", "to", remoteID, "error", err)
		}
	}

	p.readLoop(ctx, remoteID, c)
}

func (p *PeerProcess) readLoop(ctx context.Context, remoteID int, c *netconn.Connection) {
	defer func() {
		c.Close()
		p.core.RemoveNeighbor(remoteID)
	}()

	for {
		msg, err := c.Receive()
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Debug("connection closed", "peer", remoteID, "error", err)
			}
			return
		}

		if err := p.core.OnMessage(remoteID, msg); err != nil {
			p.logger.Warn("error handling message", "peer", remoteID, "error", err)
			return
		}
	}
}

func (p *PeerProcess) pollUntilComplete(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var completionStart time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.isSwarmComplete() {
				if completionStart.IsZero() {
					completionStart = time.Now()
					p.logger.Info("completion", "msg", "all peers complete, waiting shutdown grace period")
				} else if time.Since(completionStart) > shutdownGraceOn {
					return nil
				}
			} else {
				completionStart = time.Time{}
			}
		}
	}
}

func (p *PeerProcess) isSwarmComplete() bool {
	if p.store.CountHave() != p.store.NumPieces() {
		return false
	}
	if !p.core.EverHadNeighbor() {
		return false
	}
	if !p.core.AllNeighborsComplete() {
		return false
	}

	want := make(map[int]bool)
	for _, peer := range p.roster {
		if peer.PeerID != p.selfID {
			want[peer.PeerID] = true
		}
	}
	have := p.core.NeighborIDs()
	if len(have) != len(want) {
		return false
	}
	for _, id := range have {
		if !want[id] {
			return false
		}
	}
	return true
}
