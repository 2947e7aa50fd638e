package fileproof

import (
	"errors"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

var (
	ErrEmptyInput           = types.ErrEmptyInput
	ErrRootNotFound         = types.ErrRootNotFound
	ErrPieceIndexOutOfRange = types.ErrPieceIndexOutOfRange
	ErrRootConflict         = types.ErrRootConflict
	ErrInvariantViolation   = types.ErrInvariantViolation

	// ErrInvalidIdentifier is returned for merkle roots that are neither a
	// sha2-256 CID nor 64 hex characters.
	ErrInvalidIdentifier = errors.New("fileproof: invalid identifier")
	ErrClosed            = errors.New("fileproof: server closed")
)
