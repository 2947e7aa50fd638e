package types

import "errors"

var (
	ErrEmptyInput           = errors.New("fileproof: empty input")
	ErrRootNotFound         = errors.New("fileproof: merkle root not found")
	ErrPieceIndexOutOfRange = errors.New("fileproof: piece index out of range")
	ErrRootConflict         = errors.New("fileproof: merkle root already stored with different chunks")

	// ErrInvariantViolation marks internal bugs, never bad user input.
	ErrInvariantViolation = errors.New("fileproof: internal invariant violated")
)
