// Package config loads the two startup text files — Common.cfg and
// PeerInfo.cfg — into the immutable records the rest of the swarm node
// runs against. Parsing follows the "Key Value" / "peerId host port
// hasFile" line grammar from the original reference implementation.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMissingKey is returned when a required Common.cfg key is absent.
	ErrMissingKey = errors.New("config: missing required key")
	// ErrBadValue is returned when a numeric field fails to parse.
	ErrBadValue = errors.New("config: invalid numeric value")
	// ErrInvalid is returned when a parsed config violates a validation
	// rule (e.g. PieceSize > FileSize, duplicate peer ids).
	ErrInvalid = errors.New("config: invalid configuration")
)

// canonicalKey is the spec-mandated spelling; legacyKey is the
// misspelling found in the original source ("NumberofPreferedNeighbors").
// Both are accepted; the legacy spelling logs a deprecation warning.
const (
	canonicalKey = "NumberOfPreferredNeighbors"
	legacyKey    = "NumberofPreferedNeighbors"
)

// CommonConfig holds the parsed, validated contents of Common.cfg.
type CommonConfig struct {
	NumPreferredNeighbors       int
	UnchokingInterval           int // seconds
	OptimisticUnchokingInterval int // seconds
	FileName                    string
	FileSize                    int64
	PieceSize                   int64
}

// PeerRecord is one line of PeerInfo.cfg.
type PeerRecord struct {
	PeerID  int
	Host    string
	Port    int
	HasFile bool
}

// LoadCommon reads and validates Common.cfg at path. log may be nil; when
// non-nil it receives a warning if the deprecated key spelling is used.
func LoadCommon(path string, log *slog.Logger) (CommonConfig, error) {
	fields, err := readKeyValueFile(path)
	if err != nil {
		return CommonConfig{}, err
	}

	neighborsRaw, ok := fields[canonicalKey]
	if !ok {
		if legacy, hasLegacy := fields[legacyKey]; hasLegacy {
			neighborsRaw = legacy
			if log != nil {
				log.Warn("config: using deprecated key spelling",
					"deprecated", legacyKey, "canonical", canonicalKey)
			}
		} else {
			return CommonConfig{}, fmt.Errorf("%w: %s (%s)", ErrMissingKey, canonicalKey, path)
		}
	}

	numPreferred, err := parseInt(path, canonicalKey, neighborsRaw)
	if err != nil {
		return CommonConfig{}, err
	}

	unchoking, err := requireInt(fields, path, "UnchokingInterval")
	if err != nil {
		return CommonConfig{}, err
	}
	optimistic, err := requireInt(fields, path, "OptimisticUnchokingInterval")
	if err != nil {
		return CommonConfig{}, err
	}
	fileName, err := requireString(fields, path, "FileName")
	if err != nil {
		return CommonConfig{}, err
	}
	fileSize, err := requireInt64(fields, path, "FileSize")
	if err != nil {
		return CommonConfig{}, err
	}
	pieceSize, err := requireInt64(fields, path, "PieceSize")
	if err != nil {
		return CommonConfig{}, err
	}

	cfg := CommonConfig{
		NumPreferredNeighbors:       numPreferred,
		UnchokingInterval:           unchoking,
		OptimisticUnchokingInterval: optimistic,
		FileName:                    fileName,
		FileSize:                    fileSize,
		PieceSize:                   pieceSize,
	}

	if err := validateCommon(cfg, path); err != nil {
		return CommonConfig{}, err
	}
	return cfg, nil
}

func validateCommon(c CommonConfig, path string) error {
	switch {
	case c.NumPreferredNeighbors <= 0:
		return fmt.Errorf("%w: %s: NumberOfPreferredNeighbors must be > 0", ErrInvalid, path)
	case c.UnchokingInterval <= 0:
		return fmt.Errorf("%w: %s: UnchokingInterval must be > 0", ErrInvalid, path)
	case c.OptimisticUnchokingInterval <= 0:
		return fmt.Errorf("%w: %s: OptimisticUnchokingInterval must be > 0", ErrInvalid, path)
	case c.FileSize <= 0:
		return fmt.Errorf("%w: %s: FileSize must be > 0", ErrInvalid, path)
	case c.PieceSize <= 0:
		return fmt.Errorf("%w: %s: PieceSize must be > 0", ErrInvalid, path)
	case c.PieceSize > c.FileSize:
		return fmt.Errorf("%w: %s: PieceSize cannot exceed FileSize", ErrInvalid, path)
	}
	return nil
}

// LoadPeers reads and validates PeerInfo.cfg at path.
func LoadPeers(path string) ([]PeerRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var peers []PeerRecord
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if isCommentOrBlank(line) {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: %s:%d: expected 'peerId host port hasFile'", ErrBadValue, path, lineNo)
		}

		peerID, err1 := strconv.Atoi(parts[0])
		port, err2 := strconv.Atoi(parts[2])
		hasFileInt, err3 := strconv.Atoi(parts[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("%w: %s:%d: peerId/port/hasFile must be integers", ErrBadValue, path, lineNo)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: %s:%d: port %d out of range", ErrInvalid, path, lineNo, port)
		}

		peers = append(peers, PeerRecord{
			PeerID:  peerID,
			Host:    parts[1],
			Port:    port,
			HasFile: hasFileInt == 1,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := validatePeers(peers, path); err != nil {
		return nil, err
	}
	return peers, nil
}

func validatePeers(peers []PeerRecord, path string) error {
	if len(peers) == 0 {
		return fmt.Errorf("%w: %s: no peers defined", ErrInvalid, path)
	}

	seen := make(map[int]bool, len(peers))
	seeds := 0
	for _, p := range peers {
		if seen[p.PeerID] {
			return fmt.Errorf("%w: %s: duplicate peer id %d", ErrInvalid, path, p.PeerID)
		}
		seen[p.PeerID] = true
		if p.HasFile {
			seeds++
		}
	}
	if seeds > 1 {
		return fmt.Errorf("%w: %s: more than one peer marked hasFile=1", ErrInvalid, path)
	}
	return nil
}

// readKeyValueFile parses "Key Value" lines, skipping blanks and lines
// starting with '#'.
func readKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if isCommentOrBlank(line) {
			continue
		}

		parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(parts) != 2 {
			// Fields may also be separated by runs of whitespace/tabs.
			fs := strings.Fields(line)
			if len(fs) != 2 {
				return nil, fmt.Errorf("%w: %s:%d: expected 'Key Value', got %q", ErrBadValue, path, lineNo, line)
			}
			parts = fs
		}
		fields[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return fields, nil
}

func isCommentOrBlank(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" || strings.HasPrefix(s, "#")
}

func requireString(fields map[string]string, path, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s: %s", ErrMissingKey, path, key)
	}
	return v, nil
}

func requireInt(fields map[string]string, path, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s: %s", ErrMissingKey, path, key)
	}
	return parseInt(path, key, v)
}

func requireInt64(fields map[string]string, path, key string) (int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s: %s", ErrMissingKey, path, key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s=%q", ErrBadValue, path, key, v)
	}
	return n, nil
}

func parseInt(path, key, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s=%q", ErrBadValue, path, key, raw)
	}
	return n, nil
}
