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

type createGroupRequest struct {
	Name string `json:"name"`
}

func groupToJSON(g *models.Group) map[string]interface{} {
	return map[string]interface{}{
		"id":         g.ID,
		"name":       g.Name,
		"created_by": g.CreatedBy,
		"created_at": g.CreatedAt,
	}
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	group, err := s.ledger.CreateGroup(r.Context(), callerFrom(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupToJSON(group))
}

type addMemberRequest struct {
	ResearcherID string `json:"researcher_id"`
	Role         string `json:"role,omitempty"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "group id must be a uuid"))
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	role := models.GroupRole(req.Role)
	if err := s.ledger.AddMember(r.Context(), groupID, callerFrom(r), req.ResearcherID, role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	groupID, err := uuid.Parse(vars["id"])
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "group id must be a uuid"))
		return
	}

	if err := s.ledger.RemoveMember(r.Context(), groupID, callerFrom(r), vars["researcherID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroupPublicKeys(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "group id must be a uuid"))
		return
	}

	keys, err := s.ledger.ListGroupPublicKeys(r.Context(), groupID, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]string, len(keys))
	for member, key := range keys {
		out[member] = base64.StdEncoding.EncodeToString(key)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListGroupShares(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "group id must be a uuid"))
		return
	}

	shares, err := s.ledger.ListGroupShares(r.Context(), groupID, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(shares))
	for _, sh := range shares {
		out = append(out, map[string]interface{}{
			"id":         sh.ID,
			"file_id":    sh.FileID,
			"group_id":   sh.GroupID,
			"sender":     sh.Sender,
			"payload":    base64.StdEncoding.EncodeToString(sh.Payload),
			"state":      sh.State,
			"viewed":     sh.Viewed,
			"created_at": sh.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
