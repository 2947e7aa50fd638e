package apiServer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fileproof "github.com/i5heu/ouroboros-fileproof"
	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fileproof.FileServer) {
	t.Helper()

	fs, err := fileproof.New(fileproof.Config{Backend: fileproof.BackendMemory, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	opts = append([]Option{WithLogger(testLogger())}, opts...)
	return New(fs, opts...), fs
}

func twoPieceFile() []byte {
	return append(bytes.Repeat([]byte{0x00}, types.ChunkSize), bytes.Repeat([]byte{0x01}, types.ChunkSize)...)
}

type rpcTestResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      json.RawMessage `json:"id"`
}

func callRPC(t *testing.T, server *Server, body string) rpcTestResponse {
	t.Helper()

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpcTestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func rpcBody(t *testing.T, method string, params ...any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 7, "method": method, "params": params})
	require.NoError(t, err)
	return string(b)
}

func TestRPC_UploadListProof(t *testing.T) {
	server, _ := newTestServer(t)
	data := twoPieceFile()
	h0 := contentAddress.Sum(data[:types.ChunkSize])
	h1 := contentAddress.Sum(data[types.ChunkSize:])
	root := contentAddress.Identifier(contentAddress.SumNode(h0, h1))

	resp := callRPC(t, server, rpcBody(t, MethodUploadFile, base64.StdEncoding.EncodeToString(data), "alice"))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, "7", string(resp.ID))
	var upload fileproof.UploadResult
	require.NoError(t, json.Unmarshal(resp.Result, &upload))
	assert.Equal(t, root, upload.MerkleRoot)
	assert.Equal(t, uint32(2), upload.Pieces)

	resp = callRPC(t, server, rpcBody(t, MethodGetFiles))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `[{"hash":"`+root+`","pieces":2}]`, string(resp.Result))

	resp = callRPC(t, server, rpcBody(t, MethodGetProof, root, 0))
	require.Nil(t, resp.Error)
	var proof fileproof.ProofResponse
	require.NoError(t, json.Unmarshal(resp.Result, &proof))
	assert.Equal(t, contentAddress.Identifier(h0), proof.ContentHash)
	assert.Equal(t, []string{contentAddress.Identifier(h1)}, proof.Proof)
	assert.True(t, fileproof.VerifyPiece(root, 0, data[:types.ChunkSize], proof))
}

func TestRPC_LeadingBlockHashIgnored(t *testing.T) {
	server, fs := newTestServer(t)
	upload, err := fs.UploadFile(context.Background(), []byte("hello world"), "")
	require.NoError(t, err)

	resp := callRPC(t, server, rpcBody(t, MethodGetFiles, nil))
	require.Nil(t, resp.Error)

	resp = callRPC(t, server, rpcBody(t, MethodGetProof, nil, upload.MerkleRoot, 0))
	require.Nil(t, resp.Error)
}

func TestRPC_EmptyListIsArray(t *testing.T) {
	server, _ := newTestServer(t)

	resp := callRPC(t, server, `{"jsonrpc":"2.0","id":1,"method":"`+MethodGetFiles+`"}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `[]`, string(resp.Result))
}

func TestRPC_Errors(t *testing.T) {
	server, fs := newTestServer(t)
	upload, err := fs.UploadFile(context.Background(), twoPieceFile(), "")
	require.NoError(t, err)
	unknown := contentAddress.Identifier(contentAddress.Sum([]byte("unknown")))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown root", rpcBody(t, MethodGetProof, unknown, 0), codeRootNotFound},
		{"index too large", rpcBody(t, MethodGetProof, upload.MerkleRoot, 2), codePieceOutOfRange},
		{"negative index", rpcBody(t, MethodGetProof, upload.MerkleRoot, -1), codePieceOutOfRange},
		{"bad root", rpcBody(t, MethodGetProof, "zzz", 0), codeInvalidParams},
		{"fractional index", rpcBody(t, MethodGetProof, upload.MerkleRoot, 0.5), codeInvalidParams},
		{"missing params", rpcBody(t, MethodGetProof, upload.MerkleRoot), codeInvalidParams},
		{"empty upload", rpcBody(t, MethodUploadFile, ""), codeEmptyInput},
		{"upload not base64", rpcBody(t, MethodUploadFile, "***"), codeInvalidParams},
		{"unknown method", rpcBody(t, "trustless_file_server_delete"), codeMethodNotFound},
		{"params object", `{"jsonrpc":"2.0","id":1,"method":"` + MethodGetFiles + `","params":{"a":1}}`, codeInvalidParams},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"` + MethodGetFiles + `"}`, codeInvalidRequest},
		{"not json", `{"jsonrpc":`, codeParseError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := callRPC(t, server, tc.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Empty(t, resp.Result)
		})
	}
}

func TestRPC_RootConflict(t *testing.T) {
	server, fs := newTestServer(t)
	data := twoPieceFile()
	_, err := fs.UploadFile(context.Background(), data, "")
	require.NoError(t, err)

	h0 := contentAddress.Sum(data[:types.ChunkSize])
	h1 := contentAddress.Sum(data[types.ChunkSize:])
	collision := append(h0.Bytes(), h1.Bytes()...)

	resp := callRPC(t, server, rpcBody(t, MethodUploadFile, base64.StdEncoding.EncodeToString(collision)))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeRootConflict, resp.Error.Code)
}

func TestREST_Routes(t *testing.T) {
	server, _ := newTestServer(t)
	data := twoPieceFile()

	req := httptest.NewRequest(http.MethodPost, "/files", bytes.NewReader(data))
	req.Header.Set(headerOwner, "alice")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var upload fileproof.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Equal(t, upload.MerkleRoot, rec.Header().Get(headerRoot))

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files", bytes.NewReader(data)))
	assert.Equal(t, http.StatusOK, rec.Code, "second upload of the same bytes")

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"hash":"`+upload.MerkleRoot+`","pieces":2}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+upload.MerkleRoot+"/proof/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var proof fileproof.ProofResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))
	assert.True(t, fileproof.VerifyProof(upload.MerkleRoot, 1, proof))

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+upload.MerkleRoot+"/pieces/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data[types.ChunkSize:], rec.Body.Bytes())
	assert.Equal(t, proof.ContentHash, rec.Header().Get(headerPieceHash))
}

func TestREST_ErrorStatuses(t *testing.T) {
	server, fs := newTestServer(t, WithMaxUploadBytes(4096))
	upload, err := fs.UploadFile(context.Background(), twoPieceFile(), "")
	require.NoError(t, err)
	unknown := contentAddress.Identifier(contentAddress.Sum([]byte("unknown")))

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		status int
	}{
		{"unknown root", http.MethodGet, "/files/" + unknown + "/proof/0", nil, http.StatusNotFound},
		{"out of range", http.MethodGet, "/files/" + upload.MerkleRoot + "/proof/2", nil, http.StatusBadRequest},
		{"negative", http.MethodGet, "/files/" + upload.MerkleRoot + "/proof/-1", nil, http.StatusBadRequest},
		{"index not a number", http.MethodGet, "/files/" + upload.MerkleRoot + "/proof/one", nil, http.StatusBadRequest},
		{"bad root", http.MethodGet, "/files/nope/proof/0", nil, http.StatusBadRequest},
		{"piece of unknown root", http.MethodGet, "/files/" + unknown + "/pieces/0", nil, http.StatusNotFound},
		{"empty upload", http.MethodPost, "/files", nil, http.StatusBadRequest},
		{"upload too large", http.MethodPost, "/files", make([]byte, 5000), http.StatusRequestEntityTooLarge},
		{"unknown route", http.MethodGet, "/nothing", nil, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	server, _ := newTestServer(t, WithAuth(UploadToken("secret")))

	req := httptest.NewRequest(http.MethodOptions, "/files", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestServer_UploadToken(t *testing.T) {
	server, _ := newTestServer(t, WithAuth(UploadToken("secret")))

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files", strings.NewReader("data")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/files", strings.NewReader("data"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/files", strings.NewReader("data"))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClient_EndToEnd(t *testing.T) {
	server, _ := newTestServer(t, WithAuth(UploadToken("secret")))
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	ctx := context.Background()
	client := NewClient(httpServer.URL+"/", httpServer.Client())

	_, err := client.Upload(ctx, []byte("x"), "")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	data := bytes.Repeat([]byte("fileproof "), 500)
	upload, err := client.WithToken("secret").Upload(ctx, data, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), upload.Pieces)

	files, err := client.GetFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, upload.MerkleRoot, files[0].MerkleRoot)

	var reassembled []byte
	for i := int64(0); i < int64(upload.Pieces); i++ {
		piece, err := client.FetchVerifiedPiece(ctx, upload.MerkleRoot, i)
		require.NoError(t, err)
		reassembled = append(reassembled, piece...)
	}
	assert.Equal(t, data, reassembled)

	_, err = client.GetProof(ctx, contentAddress.Identifier(contentAddress.Sum([]byte("unknown"))), 0)
	assert.True(t, errors.Is(err, fileproof.ErrRootNotFound))
}

// lyingService serves a piece that does not belong to the proven leaf.
type lyingService struct {
	FileService
}

func (l lyingService) GetPiece(ctx context.Context, merkleRoot string, pieceIndex int64) ([]byte, error) {
	piece, err := l.FileService.GetPiece(ctx, merkleRoot, pieceIndex)
	if err != nil {
		return nil, err
	}
	piece[0] ^= 0x01
	return piece, nil
}

func TestClient_RejectsTamperedPiece(t *testing.T) {
	fs, err := fileproof.New(fileproof.Config{Backend: fileproof.BackendMemory, Logger: testLogger()})
	require.NoError(t, err)
	defer fs.Close()

	upload, err := fs.UploadFile(context.Background(), twoPieceFile(), "")
	require.NoError(t, err)

	httpServer := httptest.NewServer(New(lyingService{fs}, WithLogger(testLogger())))
	defer httpServer.Close()

	client := NewClient(httpServer.URL, httpServer.Client())
	_, err = client.FetchVerifiedPiece(context.Background(), upload.MerkleRoot, 1)
	assert.True(t, errors.Is(err, ErrProofRejected))
}
