// Package store is the on-disk piece store: a fixed-size backing file plus
// the local presence bitfield tracking which pieces of it are valid.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/p2pswarm/node/internal/bitfield"
)

// PieceStore owns one peer's backing file and presence bitfield. All
// operations are safe for concurrent use; callers that also hold the
// PeerCore lock around a call are not required to (the store has its own
// serialization), but the spec allows releasing the outer lock around a
// read/write as long as pre/post conditions are re-checked under it.
type PieceStore struct {
	mu   sync.Mutex
	meta FileMeta

	peerDir  string
	dataPath string
	bf       bitfield.Bitfield
}

// New creates peer_<peerID>/ under workdir and, inside it, the backing file
// named meta.FileName. When hasCompleteFile is true and a source file named
// meta.FileName exists at the working directory root, its contents are
// copied in; otherwise the target file is created and extended to exactly
// FileSize bytes, zero-filled. Whenever hasCompleteFile is true the bitfield
// starts fully set, whether or not a source file was found.
func New(workdir string, peerID int, meta FileMeta, hasCompleteFile bool) (*PieceStore, error) {
	peerDir := filepath.Join(workdir, fmt.Sprintf("peer_%d", peerID))
	if err := os.MkdirAll(peerDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", peerDir, err)
	}

	dataPath := filepath.Join(peerDir, meta.FileName)
	s := &PieceStore{
		meta:     meta,
		peerDir:  peerDir,
		dataPath: dataPath,
		bf:       bitfield.New(meta.NumPieces()),
	}

	sourcePath := filepath.Join(workdir, meta.FileName)
	copied := false
	if hasCompleteFile {
		if ok, err := s.copySourceFile(sourcePath); err != nil {
			return nil, err
		} else {
			copied = ok
		}
	}

	if !copied {
		if err := s.ensureTargetFile(); err != nil {
			return nil, err
		}
	}

	if hasCompleteFile {
		for i := 0; i < meta.NumPieces(); i++ {
			if err := s.bf.Set(i); err != nil {
				return nil, fmt.Errorf("store: seeding bitfield: %w", err)
			}
		}
	}

	return s, nil
}

// copySourceFile copies sourcePath into the peer's data file verbatim, used
// to seed a peer started with hasCompleteFile=true. It reports false
// (without error) when no source file exists, leaving the caller to fall
// back to creating a zero-filled target.
func (s *PieceStore) copySourceFile(sourcePath string) (bool, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: open source %s: %w", sourcePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(s.dataPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false, fmt.Errorf("store: create %s: %w", s.dataPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return false, fmt.Errorf("store: copy seed file: %w", err)
	}
	return true, nil
}

// Meta returns the store's FileMeta.
func (s *PieceStore) Meta() FileMeta {
	return s.meta
}

// NumPieces returns the total number of pieces in the target file.
func (s *PieceStore) NumPieces() int {
	return s.meta.NumPieces()
}

// DataPath returns the absolute path to the backing file.
func (s *PieceStore) DataPath() string {
	return s.dataPath
}

// HasPiece reports whether piece i is present locally.
func (s *PieceStore) HasPiece(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bf.Has(i)
}

// CountHave returns the number of pieces currently present.
func (s *PieceStore) CountHave() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bf.CountSet()
}

// RawBitfield returns a defensive copy of the packed bitfield, suitable for
// a BITFIELD message payload.
func (s *PieceStore) RawBitfield() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bf.ToBytes()
}

// ReadPiece reads and returns the exact bytes of piece i.
func (s *PieceStore) ReadPiece(i int) ([]byte, error) {
	plen, err := s.meta.PieceLen(i)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.dataPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", s.dataPath, err)
	}
	defer f.Close()

	buf := make([]byte, plen)
	n, err := f.ReadAt(buf, s.meta.Offset(i))
	if err != nil && int64(n) != plen {
		return nil, fmt.Errorf("%w: piece %d: expected %d bytes, got %d", ErrShortRead, i, plen, n)
	}
	return buf, nil
}

// WritePiece writes content to piece i's offset and atomically marks it
// present. content must have exactly PieceLen(i) bytes.
func (s *PieceStore) WritePiece(i int, content []byte) error {
	plen, err := s.meta.PieceLen(i)
	if err != nil {
		return err
	}
	if int64(len(content)) != plen {
		return fmt.Errorf("%w: piece %d: expected %d bytes, got %d", ErrWrongPieceSize, i, plen, len(content))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.dataPath, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", s.dataPath, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(content, s.meta.Offset(i)); err != nil {
		return fmt.Errorf("store: write piece %d: %w", i, err)
	}

	return s.bf.Set(i)
}

// ensureTargetFile creates the backing file if absent and extends it to
// FileSize bytes, zero-filling any gap, without touching existing content.
func (s *PieceStore) ensureTargetFile() error {
	f, err := os.OpenFile(s.dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", s.dataPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("store: stat %s: %w", s.dataPath, err)
	}

	if info.Size() < s.meta.FileSize {
		if err := f.Truncate(s.meta.FileSize); err != nil {
			return fmt.Errorf("store: truncate %s: %w", s.dataPath, err)
		}
	}
	return nil
}
