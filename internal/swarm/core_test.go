package swarm

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/p2pswarm/node/internal/netconn"
	"github.com/p2pswarm/node/internal/store"
	"github.com/p2pswarm/node/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeConn returns a *netconn.Connection wired to a net.Pipe, and the other
// end of the pipe for the test to read/write directly.
func pipeConn(t *testing.T) (*netconn.Connection, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return netconn.New(a), b
}

func newTestCore(t *testing.T, selfID int, hasFile bool) *PeerCore {
	t.Helper()
	dir := t.TempDir()
	meta, err := store.NewFileMeta("thefile.dat", 10, 4)
	if err != nil {
		t.Fatalf("NewFileMeta: %v", err)
	}
	st, err := store.New(dir, selfID, meta, hasFile)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return New(selfID, st, testLogger())
}

func readMessage(t *testing.T, conn net.Conn) wire.Message {
	t.Helper()
	m, err := wire.ReadMessage(conn)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return m
}

func TestBitfieldTriggersInterestedWhenRemoteHasMore(t *testing.T) {
	core := newTestCore(t, 2, false)
	conn, remote := pipeConn(t)
	defer remote.Close()

	if _, err := core.AddNeighbor(1, conn); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	done := make(chan wire.Message, 1)
	go func() { done <- readMessage(t, remote) }()

	if err := core.OnMessage(1, wire.NewBitfield([]byte{0b11100000})); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	got := <-done
	if got.Type != wire.Interested {
		t.Fatalf("got %s, want INTERESTED", got.Type)
	}
}

func TestBitfieldNoInterestWhenRemoteHasNothingNew(t *testing.T) {
	core := newTestCore(t, 2, true) // we already have everything
	conn, remote := pipeConn(t)
	defer remote.Close()

	if _, err := core.AddNeighbor(1, conn); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	if err := core.OnMessage(1, wire.NewBitfield([]byte{0b11100000})); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	remote.SetReadDeadline(deadlineSoon())
	buf := make([]byte, 4)
	if _, err := remote.Read(buf); err == nil {
		t.Fatalf("expected no message to be sent, got bytes %v", buf)
	}
}

func TestUnchokeTriggersRequest(t *testing.T) {
	core := newTestCore(t, 2, false)
	conn, remote := pipeConn(t)
	defer remote.Close()

	if _, err := core.AddNeighbor(1, conn); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	interested := make(chan error, 1)
	go func() {
		_, err := readMessageNonBlocking(remote)
		interested <- err
	}()

	if err := core.OnMessage(1, wire.NewBitfield([]byte{0b11100000})); err != nil {
		t.Fatalf("OnMessage(bitfield): %v", err)
	}
	if err := <-interested; err != nil {
		t.Fatalf("expected INTERESTED, got err: %v", err)
	}

	done := make(chan wire.Message, 1)
	go func() { done <- readMessage(t, remote) }()

	if err := core.OnMessage(1, wire.NewUnchoke()); err != nil {
		t.Fatalf("OnMessage(unchoke): %v", err)
	}

	got := <-done
	idx, ok := got.ParseIndex()
	if got.Type != wire.Request || !ok || idx != 0 {
		t.Fatalf("got %+v, want REQUEST(0)", got)
	}
}

func TestRequestWhileChokingIsDropped(t *testing.T) {
	core := newTestCore(t, 1, true) // seed, choking by default
	conn, remote := pipeConn(t)
	defer remote.Close()

	if _, err := core.AddNeighbor(2, conn); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	if err := core.OnMessage(2, wire.NewRequest(0)); err != nil {
		t.Fatalf("OnMessage(request): %v", err)
	}

	remote.SetReadDeadline(deadlineSoon())
	buf := make([]byte, 4)
	if _, err := remote.Read(buf); err == nil {
		t.Fatalf("expected no PIECE while choking, got bytes")
	}
}

func TestPieceWriteBroadcastsHave(t *testing.T) {
	core := newTestCore(t, 2, false)
	connA, remoteA := pipeConn(t)
	connB, remoteB := pipeConn(t)
	defer remoteA.Close()
	defer remoteB.Close()

	if _, err := core.AddNeighbor(1, connA); err != nil {
		t.Fatalf("AddNeighbor(1): %v", err)
	}
	if _, err := core.AddNeighbor(3, connB); err != nil {
		t.Fatalf("AddNeighbor(3): %v", err)
	}

	doneA := make(chan wire.Message, 1)
	doneB := make(chan wire.Message, 1)
	go func() { doneA <- readMessage(t, remoteA) }()
	go func() { doneB <- readMessage(t, remoteB) }()

	if err := core.OnMessage(1, wire.NewPiece(0, []byte("ABCD"))); err != nil {
		t.Fatalf("OnMessage(piece): %v", err)
	}

	for _, got := range []wire.Message{<-doneA, <-doneB} {
		if got.Type != wire.Have {
			t.Fatalf("got %s, want HAVE", got.Type)
		}
		idx, _ := got.ParseIndex()
		if idx != 0 {
			t.Fatalf("HAVE index = %d, want 0", idx)
		}
	}
}

func TestSetPreferredNeighborsUnchokes(t *testing.T) {
	core := newTestCore(t, 2, true)
	conn, remote := pipeConn(t)
	defer remote.Close()

	if _, err := core.AddNeighbor(1, conn); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	done := make(chan wire.Message, 1)
	go func() { done <- readMessage(t, remote) }()

	core.SetPreferredNeighbors([]int{1})

	got := <-done
	if got.Type != wire.Unchoke {
		t.Fatalf("got %s, want UNCHOKE", got.Type)
	}
}

func TestUnknownNeighborMessageDroppedSilently(t *testing.T) {
	core := newTestCore(t, 2, false)
	if err := core.OnMessage(999, wire.NewChoke()); err != nil {
		t.Fatalf("OnMessage for unknown peer should be a no-op, got %v", err)
	}
}

func readMessageNonBlocking(conn net.Conn) (wire.Message, error) {
	conn.SetReadDeadline(deadlineSoon())
	return wire.ReadMessage(conn)
}

func deadlineSoon() time.Time {
	return time.Now().Add(200 * time.Millisecond)
}
