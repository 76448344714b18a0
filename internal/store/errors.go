package store

import "errors"

var (
	// ErrIndexOutOfRange indicates a piece index outside [0, numPieces). The
	// spec treats this as a programmer bug, not a recoverable condition.
	ErrIndexOutOfRange = errors.New("store: piece index out of range")
	// ErrShortRead is returned when the backing file has fewer bytes than a
	// piece requires, typically because it was truncated out from under us.
	ErrShortRead = errors.New("store: short read")
	// ErrWrongPieceSize is returned when writePiece is given a buffer whose
	// length doesn't match the target piece's exact length.
	ErrWrongPieceSize = errors.New("store: wrong piece size")
)
