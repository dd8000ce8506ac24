// Package client is the uploader/sender/receiver-side SDK: it owns a
// Keystore and drives the Hybrid Cipher Engine locally, and only ever
// speaks ciphertext and base64-encoded KEM payloads over HTTP to the
// server. No DEK or plaintext is ever marshaled into a request.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/cryptoengine"
	"github.com/Sansi-28/byteguard/internal/keystore"
	"github.com/Sansi-28/byteguard/internal/wire"
)

// Client is one researcher's local process: an HTTP client bound to one
// server, a session token once authenticated, and a Keystore holding this
// identifier's Kyber-512 keypair.
type Client struct {
	baseURL      string
	http         *http.Client
	keystore     *keystore.Keystore
	researcherID string
	token        string
}

// New constructs a Client against baseURL, using ks as its local keypair
// store. ks is owned by the caller; Client never closes it.
func New(baseURL string, ks *keystore.Keystore) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		keystore: ks,
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON error body into an apierr.Error on any
// non-2xx response.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return apierr.New(kindFromString(body.Kind), body.Error)
	}

	if out == nil {
		return nil
	}
	if resp.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func kindFromString(s string) apierr.Kind {
	for k := apierr.Unauthorized; k <= apierr.Internal; k++ {
		if k.String() == s {
			return k
		}
	}
	return apierr.Internal
}

// Register creates an identity (with no public key yet — Login will bind
// one on first use via the keystore) and authenticates as it.
func (c *Client) Register(ctx context.Context, researcherID, password string) error {
	body, _ := json.Marshal(map[string]string{
		"researcher_id": researcherID,
		"password":      password,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/identities/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	c.researcherID = researcherID
	return nil
}

// Login authenticates, then ensures a local keypair exists for this
// identifier, generating and publishing one if this is the first login on
// this machine.
func (c *Client) Login(ctx context.Context, researcherID, password string) error {
	body, _ := json.Marshal(map[string]string{
		"researcher_id": researcherID,
		"password":      password,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/identities/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Token        string `json:"token"`
		ResearcherID string `json:"researcher_id"`
		HasPublicKey bool   `json:"has_public_key"`
	}
	if err := c.do(req, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	c.researcherID = researcherID

	pub, _, generated, err := c.keystore.GetOrGenerate(researcherID, cryptoengine.GenerateKeypair)
	if err != nil {
		return err
	}
	if generated || !resp.HasPublicKey {
		if err := c.publishPublicKey(ctx, pub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) publishPublicKey(ctx context.Context, pub wire.KyberPublicKey) error {
	body, _ := json.Marshal(map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(pub[:]),
	})
	req, err := c.newRequest(ctx, http.MethodPut, "/api/identities/public-key", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Logout destroys the current session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/identities/logout", nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// LookupPublicKey fetches another identity's registered public key.
func (c *Client) LookupPublicKey(ctx context.Context, researcherID string) (wire.KyberPublicKey, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/identities/"+researcherID+"/public-key", nil)
	if err != nil {
		return wire.KyberPublicKey{}, err
	}
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.do(req, &resp); err != nil {
		return wire.KyberPublicKey{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		return wire.KyberPublicKey{}, apierr.New(apierr.BadKey, "server returned malformed public key")
	}
	return wire.NewKyberPublicKey(raw)
}

// Search runs a prefix search over registered identifiers.
func (c *Client) Search(ctx context.Context, prefix string) ([]SearchResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/identities/search?prefix="+prefix, nil)
	if err != nil {
		return nil, err
	}
	var results []SearchResult
	if err := c.do(req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SearchResult mirrors one row of a prefix search.
type SearchResult struct {
	ResearcherID string `json:"researcher_id"`
	HasPublicKey bool   `json:"has_public_key"`
}

// UploadResult is what Upload returns: the new file-id. It carries no DEK;
// re-sharing recovers the DEK from the owner-wrap payload.
type UploadResult struct {
	FileID int64
}

// Upload encrypts plaintext under the caller's own public key, uploads the
// ciphertext blob, and returns the new file-id. The DEK never leaves this
// function except wrapped inside the owner-wrap payload sent to the
// server.
func (c *Client) Upload(ctx context.Context, displayName, contentType string, plaintext []byte) (*UploadResult, error) {
	pub, _, err := c.requireKeypair()
	if err != nil {
		return nil, err
	}

	result, err := cryptoengine.EncryptAndWrap(pub, plaintext)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", displayName)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "create multipart file part", err)
	}
	if _, err := part.Write(result.Blob); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "write multipart file part", err)
	}

	writer.WriteField("fileName", displayName)
	writer.WriteField("originalSize", strconv.Itoa(len(plaintext)))
	writer.WriteField("contentType", contentType)
	writer.WriteField("sha256Hash", result.Fingerprint)
	writer.WriteField("ownerKemCt", base64.StdEncoding.EncodeToString(result.OwnerWrap[:]))
	writer.Close()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp struct {
		FileID int64 `json:"file_id"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &UploadResult{FileID: resp.FileID}, nil
}

// requireKeypair returns the caller's own keypair, translating a missing
// keypair into the no-keypair failure scenario: a caller authenticated on
// a machine that never logged in locally cannot upload or decrypt.
func (c *Client) requireKeypair() (wire.KyberPublicKey, wire.KyberPrivateKey, error) {
	return c.keystore.Get(c.researcherID)
}

// Download fetches file-id's ciphertext and metadata, verifies its
// fingerprint, recovers the DEK via the caller's own keypair, and decrypts
// it.
func (c *Client) Download(ctx context.Context, fileID int64) ([]byte, error) {
	meta, err := c.FileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/files/"+strconv.FormatInt(fileID, 10), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "download request", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return nil, apierr.New(kindFromString(body.Kind), body.Error)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "read download body", err)
	}

	if err := cryptoengine.VerifyFingerprint(blob, meta.Fingerprint); err != nil {
		return nil, err
	}

	_, priv, err := c.requireKeypair()
	if err != nil {
		return nil, err
	}
	ownerWrap, err := wire.NewKEMPayload(meta.OwnerWrap)
	if err != nil {
		return nil, err
	}
	return cryptoengine.DecryptAndUnwrap(priv, ownerWrap, blob)
}

// FileMetadataView is the client-visible view of a file record.
type FileMetadataView struct {
	ID             int64
	Owner          string
	DisplayName    string
	OriginalSize   int64
	CiphertextSize int64
	ContentType    string
	Fingerprint    string
	OwnerWrap      []byte
}

// FileMetadata fetches a file record's metadata.
func (c *Client) FileMetadata(ctx context.Context, fileID int64) (*FileMetadataView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/files/"+strconv.FormatInt(fileID, 10)+"/metadata", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		ID             int64  `json:"id"`
		Owner          string `json:"owner"`
		DisplayName    string `json:"display_name"`
		OriginalSize   int64  `json:"original_size"`
		CiphertextSize int64  `json:"ciphertext_size"`
		ContentType    string `json:"content_type"`
		Fingerprint    string `json:"fingerprint"`
		OwnerWrap      string `json:"owner_wrap"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	ownerWrap, err := base64.StdEncoding.DecodeString(resp.OwnerWrap)
	if err != nil {
		return nil, apierr.New(apierr.BadPayload, "server returned malformed owner wrap")
	}
	return &FileMetadataView{
		ID:             resp.ID,
		Owner:          resp.Owner,
		DisplayName:    resp.DisplayName,
		OriginalSize:   resp.OriginalSize,
		CiphertextSize: resp.CiphertextSize,
		ContentType:    resp.ContentType,
		Fingerprint:    resp.Fingerprint,
		OwnerWrap:      ownerWrap,
	}, nil
}

// ListMyFiles lists every file owned by the authenticated caller.
func (c *Client) ListMyFiles(ctx context.Context) ([]*FileMetadataView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/files", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID             int64  `json:"id"`
		Owner          string `json:"owner"`
		DisplayName    string `json:"display_name"`
		OriginalSize   int64  `json:"original_size"`
		CiphertextSize int64  `json:"ciphertext_size"`
		ContentType    string `json:"content_type"`
		Fingerprint    string `json:"fingerprint"`
		OwnerWrap      string `json:"owner_wrap"`
	}
	if err := c.do(req, &rows); err != nil {
		return nil, err
	}
	out := make([]*FileMetadataView, 0, len(rows))
	for _, row := range rows {
		ownerWrap, _ := base64.StdEncoding.DecodeString(row.OwnerWrap)
		out = append(out, &FileMetadataView{
			ID:             row.ID,
			Owner:          row.Owner,
			DisplayName:    row.DisplayName,
			OriginalSize:   row.OriginalSize,
			CiphertextSize: row.CiphertextSize,
			ContentType:    row.ContentType,
			Fingerprint:    row.Fingerprint,
			OwnerWrap:      ownerWrap,
		})
	}
	return out, nil
}
