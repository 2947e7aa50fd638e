package apiServer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.GetFiles(r.Context())
	if err != nil {
		s.fail(w, err, logrus.Fields{"route": "list"})
		return
	}

	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	owner := r.Header.Get(headerOwner)
	result, err := s.files.UploadFile(r.Context(), payload, owner)
	if err != nil {
		s.fail(w, err, logrus.Fields{"route": "upload", "owner": owner, "size": len(payload)})
		return
	}

	status := http.StatusCreated
	if result.AlreadyStored {
		status = http.StatusOK
	}
	w.Header().Set(headerRoot, result.MerkleRoot)
	writeJSON(w, status, result)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	root := r.PathValue("root")
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid piece index: %v", err), http.StatusBadRequest)
		return
	}

	proof, err := s.files.GetProof(r.Context(), root, index)
	if err != nil {
		s.fail(w, err, logrus.Fields{"route": "proof", "root": root, "index": index})
		return
	}

	w.Header().Set(headerRoot, root)
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handlePiece(w http.ResponseWriter, r *http.Request) {
	root := r.PathValue("root")
	index, err := parseIndex(r.PathValue("index"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid piece index: %v", err), http.StatusBadRequest)
		return
	}

	piece, err := s.files.GetPiece(r.Context(), root, index)
	if err != nil {
		s.fail(w, err, logrus.Fields{"route": "piece", "root": root, "index": index})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(piece)))
	w.Header().Set(headerRoot, root)
	w.Header().Set(headerPieceHash, contentAddress.Identifier(contentAddress.Sum(piece)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(piece); err != nil {
		s.log.WithError(err).WithField("root", root).Error("failed to write response body")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error, fields logrus.Fields) {
	kind := classify(err)
	s.logFailure(err, kind, fields)

	message := kind.message
	if kind.status < http.StatusInternalServerError {
		message = err.Error()
	}
	http.Error(w, message, kind.status)
}
