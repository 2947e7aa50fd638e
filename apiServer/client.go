package apiServer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	fileproof "github.com/i5heu/ouroboros-fileproof"
)

// ErrProofRejected is returned when a downloaded piece does not verify
// against the merkle root the caller trusts.
var ErrProofRejected = errors.New("apiServer: piece does not verify against merkle root")

// StatusError is a non 2xx answer of the REST routes.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps statuses that carry exactly one meaning back to their sentinel.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return fileproof.ErrRootNotFound
	case http.StatusConflict:
		return fileproof.ErrRootConflict
	}
	return nil
}

// Client talks to the REST routes. It trusts the server for nothing but
// availability, FetchVerifiedPiece checks every piece against the root.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// WithToken returns a copy of the client sending token as bearer on uploads.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) Upload(ctx context.Context, data []byte, owner string) (fileproof.UploadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", bytes.NewReader(data))
	if err != nil {
		return fileproof.UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if owner != "" {
		req.Header.Set(headerOwner, owner)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var result fileproof.UploadResult
	err = c.doJSON(req, &result)
	return result, err
}

func (c *Client) GetFiles(ctx context.Context) ([]fileproof.FileListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files", nil)
	if err != nil {
		return nil, err
	}

	var files []fileproof.FileListing
	err = c.doJSON(req, &files)
	return files, err
}

func (c *Client) GetProof(ctx context.Context, merkleRoot string, pieceIndex int64) (fileproof.ProofResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pieceURL(merkleRoot, "proof", pieceIndex), nil)
	if err != nil {
		return fileproof.ProofResponse{}, err
	}

	var proof fileproof.ProofResponse
	err = c.doJSON(req, &proof)
	return proof, err
}

func (c *Client) GetPiece(ctx context.Context, merkleRoot string, pieceIndex int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pieceURL(merkleRoot, "pieces", pieceIndex), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// FetchVerifiedPiece downloads a piece and its proof and returns the piece
// only if it verifies against merkleRoot.
func (c *Client) FetchVerifiedPiece(ctx context.Context, merkleRoot string, pieceIndex int64) ([]byte, error) {
	proof, err := c.GetProof(ctx, merkleRoot, pieceIndex)
	if err != nil {
		return nil, errors.Wrap(err, "fetch proof")
	}
	piece, err := c.GetPiece(ctx, merkleRoot, pieceIndex)
	if err != nil {
		return nil, errors.Wrap(err, "fetch piece")
	}

	if !fileproof.VerifyPiece(merkleRoot, pieceIndex, piece, proof) {
		return nil, errors.Wrapf(ErrProofRejected, "piece %d of %s", pieceIndex, merkleRoot)
	}
	return piece, nil
}

func (c *Client) pieceURL(merkleRoot, kind string, pieceIndex int64) string {
	return c.baseURL + "/files/" + url.PathEscape(merkleRoot) + "/" + kind + "/" + strconv.FormatInt(pieceIndex, 10)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
