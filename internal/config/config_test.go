package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadCommonCanonical(t *testing.T) {
	path := writeTemp(t, "Common.cfg", `NumberOfPreferredNeighbors 2
UnchokingInterval 5
OptimisticUnchokingInterval 15
FileName thefile.dat
FileSize 2167705
PieceSize 16384
`)
	cfg, err := LoadCommon(path, nil)
	if err != nil {
		t.Fatalf("LoadCommon: %v", err)
	}
	if cfg.NumPreferredNeighbors != 2 || cfg.UnchokingInterval != 5 ||
		cfg.OptimisticUnchokingInterval != 15 || cfg.FileName != "thefile.dat" ||
		cfg.FileSize != 2167705 || cfg.PieceSize != 16384 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadCommonLegacyKey(t *testing.T) {
	path := writeTemp(t, "Common.cfg", `NumberofPreferedNeighbors 3
UnchokingInterval 5
OptimisticUnchokingInterval 15
FileName thefile.dat
FileSize 2167705
PieceSize 16384
`)
	cfg, err := LoadCommon(path, nil)
	if err != nil {
		t.Fatalf("LoadCommon: %v", err)
	}
	if cfg.NumPreferredNeighbors != 3 {
		t.Fatalf("NumPreferredNeighbors = %d, want 3", cfg.NumPreferredNeighbors)
	}
}

func TestLoadCommonMissingKey(t *testing.T) {
	path := writeTemp(t, "Common.cfg", `UnchokingInterval 5
OptimisticUnchokingInterval 15
FileName thefile.dat
FileSize 2167705
PieceSize 16384
`)
	_, err := LoadCommon(path, nil)
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
}

func TestLoadCommonPieceSizeExceedsFileSize(t *testing.T) {
	path := writeTemp(t, "Common.cfg", `NumberOfPreferredNeighbors 2
UnchokingInterval 5
OptimisticUnchokingInterval 15
FileName thefile.dat
FileSize 100
PieceSize 200
`)
	_, err := LoadCommon(path, nil)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadPeers(t *testing.T) {
	path := writeTemp(t, "PeerInfo.cfg", `1001 lin114-00.cise.ufl.edu 6008 1
1002 lin114-01.cise.ufl.edu 6008 0
1003 lin114-02.cise.ufl.edu 6008 0
`)
	peers, err := LoadPeers(path)
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("len(peers) = %d, want 3", len(peers))
	}
	if peers[0].PeerID != 1001 || !peers[0].HasFile {
		t.Fatalf("peers[0] = %+v", peers[0])
	}
	if peers[1].HasFile {
		t.Fatalf("peers[1].HasFile = true, want false")
	}
}

func TestLoadPeersDuplicateID(t *testing.T) {
	path := writeTemp(t, "PeerInfo.cfg", `1001 a 6008 1
1001 b 6009 0
`)
	_, err := LoadPeers(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadPeersMultipleSeeds(t *testing.T) {
	path := writeTemp(t, "PeerInfo.cfg", `1001 a 6008 1
1002 b 6009 1
`)
	_, err := LoadPeers(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoadPeersBadLine(t *testing.T) {
	path := writeTemp(t, "PeerInfo.cfg", `1001 a 6008
`)
	_, err := LoadPeers(path)
	if !errors.Is(err, ErrBadValue) {
		t.Fatalf("err = %v, want ErrBadValue", err)
	}
}

func TestLoadPeersSkipsCommentsAndBlanks(t *testing.T) {
	path := writeTemp(t, "PeerInfo.cfg", `# roster
1001 a 6008 1

1002 b 6009 0
`)
	peers, err := LoadPeers(path)
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("len(peers) = %d, want 2", len(peers))
	}
}
