// Package apiServer exposes a FileServer over HTTP, as JSON-RPC 2.0 on
// POST /rpc and as plain REST routes under /files.
package apiServer

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	fileproof "github.com/i5heu/ouroboros-fileproof"
)

const defaultMaxUploadBytes = 64 << 20

// FileService is the part of *fileproof.FileServer the transport needs.
type FileService interface {
	UploadFile(ctx context.Context, data []byte, owner string) (fileproof.UploadResult, error)
	GetFiles(ctx context.Context) ([]fileproof.FileListing, error)
	GetProof(ctx context.Context, merkleRoot string, pieceIndex int64) (fileproof.ProofResponse, error)
	GetPiece(ctx context.Context, merkleRoot string, pieceIndex int64) ([]byte, error)
}

type Server struct {
	mux            *http.ServeMux
	files          FileService
	log            *logrus.Entry
	auth           AuthFunc
	maxUploadBytes int64
}

type Option func(*Server)

func New(files FileService, opts ...Option) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		files:          files,
		log:            logrus.StandardLogger().WithField("component", "apiServer"),
		auth:           defaultAuth,
		maxUploadBytes: defaultMaxUploadBytes,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /rpc", s.handleRPC)
	s.mux.HandleFunc("GET /files", s.handleList)
	s.mux.HandleFunc("POST /files", s.handleUpload)
	s.mux.HandleFunc("GET /files/{root}/proof/{index}", s.handleProof)
	s.mux.HandleFunc("GET /files/{root}/pieces/{index}", s.handlePiece)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+headerOwner)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Type, Content-Length, "+headerRoot+", "+headerPieceHash)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.auth(r); err != nil {
		s.log.WithError(err).WithField("path", r.URL.Path).Warn("authentication failed")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	s.mux.ServeHTTP(w, r)
}
