package store

import "fmt"

// FileMeta describes the target file and how it is split into pieces.
type FileMeta struct {
	FileName  string
	FileSize  int64
	PieceSize int64
}

// NewFileMeta validates and constructs a FileMeta. PieceSize must not
// exceed FileSize; both must be positive.
func NewFileMeta(fileName string, fileSize, pieceSize int64) (FileMeta, error) {
	if fileSize <= 0 {
		return FileMeta{}, fmt.Errorf("store: fileSize must be > 0, got %d", fileSize)
	}
	if pieceSize <= 0 {
		return FileMeta{}, fmt.Errorf("store: pieceSize must be > 0, got %d", pieceSize)
	}
	if pieceSize > fileSize {
		return FileMeta{}, fmt.Errorf("store: pieceSize (%d) cannot exceed fileSize (%d)", pieceSize, fileSize)
	}
	return FileMeta{FileName: fileName, FileSize: fileSize, PieceSize: pieceSize}, nil
}

// NumPieces is ceil(FileSize / PieceSize).
func (m FileMeta) NumPieces() int {
	return int((m.FileSize + m.PieceSize - 1) / m.PieceSize)
}

// PieceLen returns the exact length of piece i; the last piece is possibly
// shorter than PieceSize.
func (m FileMeta) PieceLen(i int) (int64, error) {
	if i < 0 || i >= m.NumPieces() {
		return 0, fmt.Errorf("store: %w: piece index %d", ErrIndexOutOfRange, i)
	}
	start := int64(i) * m.PieceSize
	end := start + m.PieceSize
	if end > m.FileSize {
		end = m.FileSize
	}
	return end - start, nil
}

// Offset returns the byte offset of piece i within the backing file.
func (m FileMeta) Offset(i int) int64 {
	return int64(i) * m.PieceSize
}
