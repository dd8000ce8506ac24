package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/google/uuid"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/models"
)

type createDirectShareRequest struct {
	FileID      int64  `json:"file_id"`
	RecipientID string `json:"recipient_id"`
	Payload     string `json:"payload"` // base64, 800-byte KEM payload
	Permission  string `json:"permission"`
}

type createDirectShareResponse struct {
	ShareID   uuid.UUID `json:"share_id"`
	ShareCode string    `json:"share_code"`
}

func (s *Server) handleCreateDirectShare(w http.ResponseWriter, r *http.Request) {
	var req createDirectShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "payload is not valid base64"))
		return
	}

	permission := models.Permission(req.Permission)
	if permission == "" {
		permission = models.PermissionDownload
	}

	shareID, code, err := s.ledger.ShareDirect(r.Context(), callerFrom(r), req.FileID, req.RecipientID, payload, permission)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createDirectShareResponse{ShareID: shareID, ShareCode: code})
}

func (s *Server) handleFetchByCode(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := s.limiter.CheckShareCodeFetch(r.Context(), callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.ledger.FetchByCode(r.Context(), callerFrom(r), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":      result.FileID,
		"display_name": result.DisplayName,
		"content_type": result.ContentType,
		"payload":      base64.StdEncoding.EncodeToString(result.Payload),
		"permission":   result.Permission,
	})
}

func directShareToJSON(sh *models.DirectShare) map[string]interface{} {
	return map[string]interface{}{
		"id":         sh.ID,
		"file_id":    sh.FileID,
		"sender":     sh.Sender,
		"recipient":  sh.Recipient,
		"share_code": sh.ShareCode,
		"permission": sh.Permission,
		"state":      sh.State,
		"viewed":     sh.Viewed,
		"created_at": sh.CreatedAt,
	}
}

func (s *Server) handleListOutgoing(w http.ResponseWriter, r *http.Request) {
	shares, err := s.ledger.ListOutgoing(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(shares))
	for _, sh := range shares {
		out = append(out, directShareToJSON(sh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListIncoming(w http.ResponseWriter, r *http.Request) {
	shares, err := s.ledger.ListIncoming(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(shares))
	for _, sh := range shares {
		out = append(out, directShareToJSON(sh))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	shareID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "share id must be a uuid"))
		return
	}
	if err := s.ledger.Revoke(r.Context(), shareID, callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createGroupShareRequest struct {
	FileID   int64             `json:"file_id"`
	Payloads map[string]string `json:"payloads"` // researcher-id -> base64 KEM payload
}

func (s *Server) handleCreateGroupShare(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	groupID, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "group id must be a uuid"))
		return
	}

	var req createGroupShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	payloads := make(map[string][]byte, len(req.Payloads))
	for member, encoded := range req.Payloads {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			writeError(w, apierr.New(apierr.BadPayload, "payload for "+member+" is not valid base64"))
			return
		}
		payloads[member] = decoded
	}

	groupShareID, err := s.ledger.ShareGroup(r.Context(), callerFrom(r), req.FileID, groupID, payloads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"group_share_id": groupShareID.String()})
}
