package apiServer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	fileproof "github.com/i5heu/ouroboros-fileproof"
)

const (
	headerOwner     = "X-Fileproof-Owner"
	headerRoot      = "X-Fileproof-Root"
	headerPieceHash = "X-Fileproof-Piece-Hash"
)

// JSON-RPC error codes. 1 is the generic runtime error of the ledger RPC this
// API mirrors, the 100x codes narrow it down.
const (
	codeRuntimeError    = 1
	codeRootNotFound    = 1001
	codePieceOutOfRange = 1002
	codeEmptyInput      = 1003
	codeRootConflict    = 1004
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
)

type errorKind struct {
	rpcCode int
	status  int
	message string
}

// classify maps a FileServer error onto the wire. Unknown errors become the
// generic runtime error.
func classify(err error) errorKind {
	switch {
	case errors.Is(err, fileproof.ErrRootNotFound):
		return errorKind{codeRootNotFound, http.StatusNotFound, "Merkle root not found"}
	case errors.Is(err, fileproof.ErrPieceIndexOutOfRange):
		return errorKind{codePieceOutOfRange, http.StatusBadRequest, "Piece index out of range"}
	case errors.Is(err, fileproof.ErrEmptyInput):
		return errorKind{codeEmptyInput, http.StatusBadRequest, "Empty input"}
	case errors.Is(err, fileproof.ErrRootConflict):
		return errorKind{codeRootConflict, http.StatusConflict, "Merkle root conflict"}
	case errors.Is(err, fileproof.ErrInvalidIdentifier):
		return errorKind{codeInvalidParams, http.StatusBadRequest, "Invalid params"}
	case errors.Is(err, fileproof.ErrClosed):
		return errorKind{codeRuntimeError, http.StatusServiceUnavailable, "Runtime error"}
	default:
		return errorKind{codeRuntimeError, http.StatusInternalServerError, "Runtime error"}
	}
}

func (s *Server) logFailure(err error, kind errorKind, fields logrus.Fields) {
	entry := s.log.WithError(err).WithFields(fields)
	if kind.status >= http.StatusInternalServerError {
		entry.Error("request failed")
		return
	}
	entry.Debug("request rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func parseIndex(value string) (int64, error) {
	return strconv.ParseInt(value, 10, 64)
}

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger.WithField("component", "apiServer")
		}
	}
}

func WithAuth(auth AuthFunc) Option {
	return func(s *Server) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// WithMaxUploadBytes limits the request body of uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}
