package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/cryptoengine"
	"github.com/Sansi-28/byteguard/internal/wire"
)

// ShareDirectResult is what ShareDirect returns.
type ShareDirectResult struct {
	ShareID   string
	ShareCode string
}

// ShareDirect re-wraps fileID's DEK for recipientID and records a direct
// share on the server. The server never sees the DEK: RecoverDEK runs
// locally against the caller's own keypair, and only the fresh
// recipient-specific payload from ShareWrap crosses the network.
func (c *Client) ShareDirect(ctx context.Context, fileID int64, recipientID, permission string) (*ShareDirectResult, error) {
	meta, err := c.FileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if meta.Owner != c.researcherID {
		return nil, apierr.New(apierr.NotOwner, "only the owner may share this file")
	}

	_, priv, err := c.requireKeypair()
	if err != nil {
		return nil, err
	}
	ownerWrap, err := wire.NewKEMPayload(meta.OwnerWrap)
	if err != nil {
		return nil, err
	}
	secret, err := cryptoengine.RecoverDEK(priv, ownerWrap)
	if err != nil {
		return nil, err
	}
	defer secret.Wipe()

	recipientPub, err := c.LookupPublicKey(ctx, recipientID)
	if err != nil {
		return nil, apierr.Wrap(apierr.NoRecipientKey, "recipient has no registered public key", err)
	}

	payload, err := cryptoengine.ShareWrap(secret, recipientPub)
	if err != nil {
		return nil, err
	}

	body, _ := json.Marshal(map[string]interface{}{
		"file_id":      fileID,
		"recipient_id": recipientID,
		"payload":      base64.StdEncoding.EncodeToString(payload[:]),
		"permission":   permission,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/shares", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		ShareID   string `json:"share_id"`
		ShareCode string `json:"share_code"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &ShareDirectResult{ShareID: resp.ShareID, ShareCode: resp.ShareCode}, nil
}

// ShareGroup re-wraps fileID's DEK for the public key of each member in
// memberIDs and fans the result out to the group in one all-or-nothing
// server call. Group members not listed in memberIDs get no payload.
func (c *Client) ShareGroup(ctx context.Context, fileID int64, groupID string, memberIDs []string) error {
	meta, err := c.FileMetadata(ctx, fileID)
	if err != nil {
		return err
	}
	if meta.Owner != c.researcherID {
		return apierr.New(apierr.NotOwner, "only the owner may share this file")
	}

	_, priv, err := c.requireKeypair()
	if err != nil {
		return err
	}
	ownerWrap, err := wire.NewKEMPayload(meta.OwnerWrap)
	if err != nil {
		return err
	}
	secret, err := cryptoengine.RecoverDEK(priv, ownerWrap)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	keys, err := c.ListGroupPublicKeys(ctx, groupID)
	if err != nil {
		return err
	}

	payloads := make(map[string]string, len(memberIDs))
	for _, member := range memberIDs {
		pub, ok := keys[member]
		if !ok {
			return apierr.New(apierr.NoRecipientKey, "member "+member+" has no registered public key")
		}
		payload, err := cryptoengine.ShareWrap(secret, pub)
		if err != nil {
			return err
		}
		payloads[member] = base64.StdEncoding.EncodeToString(payload[:])
	}

	body, _ := json.Marshal(map[string]interface{}{
		"file_id":  fileID,
		"payloads": payloads,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/groups/"+groupID+"/shares", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// ReceiveResult is what Receive returns: the decrypted plaintext plus the
// display metadata the sender attached at upload time.
type ReceiveResult struct {
	Plaintext   []byte
	DisplayName string
	ContentType string
}

// Receive pulls a share-code's payload, fetches the file's ciphertext, and
// decrypts it against the caller's own keypair. Returns NoKeypair if this
// process has no local keypair for the authenticated identity.
func (c *Client) Receive(ctx context.Context, shareCode string) (*ReceiveResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/shares/fetch/"+shareCode, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		FileID      int64  `json:"file_id"`
		DisplayName string `json:"display_name"`
		ContentType string `json:"content_type"`
		Payload     string `json:"payload"`
		Permission  string `json:"permission"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(resp.Payload)
	if err != nil {
		return nil, apierr.New(apierr.BadPayload, "server returned malformed share payload")
	}
	payload, err := wire.NewKEMPayload(payloadBytes)
	if err != nil {
		return nil, err
	}

	downloadReq, err := c.newRequest(ctx, http.MethodGet, "/api/files/"+strconv.FormatInt(resp.FileID, 10), nil)
	if err != nil {
		return nil, err
	}
	blobResp, err := c.http.Do(downloadReq)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "download shared blob", err)
	}
	defer blobResp.Body.Close()
	if blobResp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		json.NewDecoder(blobResp.Body).Decode(&body)
		return nil, apierr.New(kindFromString(body.Kind), body.Error)
	}
	blob, err := io.ReadAll(blobResp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "read shared blob", err)
	}

	_, priv, err := c.requireKeypair()
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptoengine.DecryptAndUnwrap(priv, payload, blob)
	if err != nil {
		return nil, err
	}
	return &ReceiveResult{Plaintext: plaintext, DisplayName: resp.DisplayName, ContentType: resp.ContentType}, nil
}

// Revoke transitions a direct share to revoked, owner-only.
func (c *Client) Revoke(ctx context.Context, shareID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/shares/"+shareID+"/revoke", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
