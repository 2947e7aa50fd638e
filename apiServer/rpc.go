package apiServer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	MethodGetFiles   = "trustless_file_server_get_files"
	MethodGetProof   = "trustless_file_server_get_proof"
	MethodUploadFile = "trustless_file_server_upload_file"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	// base64 inflates uploads by a third
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2*s.maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeInvalidRequest, Message: "Invalid request", Data: err.Error()},
		})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeParseError, Message: "Parse error", Data: err.Error()},
		})
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeInvalidRequest, Message: "Invalid request"},
			ID:      req.ID,
		})
		return
	}

	result, rpcErr := s.dispatch(r, req)
	writeJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		Result:  result,
		Error:   rpcErr,
		ID:      req.ID,
	})
}

func (s *Server) dispatch(r *http.Request, req rpcRequest) (any, *RPCError) {
	params, err := positionalParams(req.Params)
	if err != nil {
		return nil, invalidParams(err)
	}

	switch req.Method {
	case MethodGetFiles:
		// an optional leading block hash is accepted and ignored
		if len(params) > 1 {
			return nil, invalidParams(fmt.Errorf("expected at most 1 param, got %d", len(params)))
		}
		files, err := s.files.GetFiles(r.Context())
		if err != nil {
			return nil, s.rpcFailure(err, logrus.Fields{"method": req.Method})
		}
		return files, nil

	case MethodGetProof:
		if len(params) == 3 {
			params = params[1:]
		}
		if len(params) != 2 {
			return nil, invalidParams(fmt.Errorf("expected [merkleRoot, position], got %d params", len(params)))
		}
		var root string
		var position int64
		if err := json.Unmarshal(params[0], &root); err != nil {
			return nil, invalidParams(fmt.Errorf("merkleRoot: %w", err))
		}
		if err := json.Unmarshal(params[1], &position); err != nil {
			return nil, invalidParams(fmt.Errorf("position: %w", err))
		}

		proof, err := s.files.GetProof(r.Context(), root, position)
		if err != nil {
			return nil, s.rpcFailure(err, logrus.Fields{"method": req.Method, "root": root, "index": position})
		}
		return proof, nil

	case MethodUploadFile:
		if len(params) < 1 || len(params) > 2 {
			return nil, invalidParams(fmt.Errorf("expected [content, owner], got %d params", len(params)))
		}
		var encoded, owner string
		if err := json.Unmarshal(params[0], &encoded); err != nil {
			return nil, invalidParams(fmt.Errorf("content: %w", err))
		}
		if len(params) == 2 {
			if err := json.Unmarshal(params[1], &owner); err != nil {
				return nil, invalidParams(fmt.Errorf("owner: %w", err))
			}
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, invalidParams(fmt.Errorf("content is not base64: %w", err))
		}
		if int64(len(data)) > s.maxUploadBytes {
			return nil, invalidParams(fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes))
		}

		result, err := s.files.UploadFile(r.Context(), data, owner)
		if err != nil {
			return nil, s.rpcFailure(err, logrus.Fields{"method": req.Method, "owner": owner, "size": len(data)})
		}
		return result, nil

	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "Method not found", Data: req.Method}
	}
}

func positionalParams(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("params must be an array: %w", err)
	}
	return params, nil
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "Invalid params", Data: err.Error()}
}

func (s *Server) rpcFailure(err error, fields logrus.Fields) *RPCError {
	kind := classify(err)
	s.logFailure(err, kind, fields)

	rpcErr := &RPCError{Code: kind.rpcCode, Message: kind.message}
	if kind.status < http.StatusInternalServerError {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}
