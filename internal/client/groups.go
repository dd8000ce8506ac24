package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/wire"
)

// GroupView is the client-visible view of a group record.
type GroupView struct {
	ID        string
	Name      string
	CreatedBy string
}

// CreateGroup creates a new group with the caller as its owner.
func (c *Client) CreateGroup(ctx context.Context, name string) (*GroupView, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/groups", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		CreatedBy string `json:"created_by"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &GroupView{ID: resp.ID, Name: resp.Name, CreatedBy: resp.CreatedBy}, nil
}

// AddGroupMember adds researcherID to groupID, owner/admin-only.
func (c *Client) AddGroupMember(ctx context.Context, groupID, researcherID, role string) error {
	body, _ := json.Marshal(map[string]string{
		"researcher_id": researcherID,
		"role":          role,
	})
	req, err := c.newRequest(ctx, http.MethodPost, "/api/groups/"+groupID+"/members", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// RemoveGroupMember removes researcherID from groupID, owner/admin-only.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, researcherID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/groups/"+groupID+"/members/"+researcherID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ListGroupPublicKeys fetches the registered public key of every current
// member of groupID, for use as ShareGroup's recipient set.
func (c *Client) ListGroupPublicKeys(ctx context.Context, groupID string) (map[string]wire.KyberPublicKey, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/groups/"+groupID+"/public-keys", nil)
	if err != nil {
		return nil, err
	}
	var resp map[string]string
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]wire.KyberPublicKey, len(resp))
	for member, encoded := range resp {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apierr.New(apierr.BadKey, "server returned malformed public key for "+member)
		}
		pub, err := wire.NewKyberPublicKey(raw)
		if err != nil {
			return nil, err
		}
		out[member] = pub
	}
	return out, nil
}

// GroupShareView is one group share as seen by the caller: a single
// member's own wrapped payload, never anyone else's.
type GroupShareView struct {
	ID      string
	FileID  int64
	GroupID string
	Sender  string
	Payload []byte
	State   string
	Viewed  bool
}

// ListGroupShares lists every active group share addressing the caller in
// groupID, member-only.
func (c *Client) ListGroupShares(ctx context.Context, groupID string) ([]*GroupShareView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/groups/"+groupID+"/shares", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID      string `json:"id"`
		FileID  int64  `json:"file_id"`
		GroupID string `json:"group_id"`
		Sender  string `json:"sender"`
		Payload string `json:"payload"`
		State   string `json:"state"`
		Viewed  bool   `json:"viewed"`
	}
	if err := c.do(req, &rows); err != nil {
		return nil, err
	}

	out := make([]*GroupShareView, 0, len(rows))
	for _, row := range rows {
		payload, err := base64.StdEncoding.DecodeString(row.Payload)
		if err != nil {
			return nil, apierr.New(apierr.BadPayload, "server returned malformed group share payload")
		}
		out = append(out, &GroupShareView{
			ID:      row.ID,
			FileID:  row.FileID,
			GroupID: row.GroupID,
			Sender:  row.Sender,
			Payload: payload,
			State:   row.State,
			Viewed:  row.Viewed,
		})
	}
	return out, nil
}
