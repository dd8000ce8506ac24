package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Sansi-28/byteguard/internal/apierr"
)

type registerRequest struct {
	ResearcherID string `json:"researcher_id"`
	Password     string `json:"password"`
	PublicKey    string `json:"public_key,omitempty"` // base64, optional
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	var publicKey []byte
	if req.PublicKey != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.PublicKey)
		if err != nil {
			writeError(w, apierr.New(apierr.BadKey, "public key is not valid base64"))
			return
		}
		publicKey = decoded
	}

	token, err := s.registry.Register(r.Context(), req.ResearcherID, req.Password, publicKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

type loginRequest struct {
	ResearcherID string `json:"researcher_id"`
	Password     string `json:"password"`
}

type loginResponse struct {
	Token        string `json:"token"`
	ResearcherID string `json:"researcher_id"`
	HasPublicKey bool   `json:"has_public_key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}

	token, snapshot, err := s.registry.Login(r.Context(), req.ResearcherID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:        token,
		ResearcherID: snapshot.ResearcherID,
		HasPublicKey: snapshot.HasPublicKey,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	token := authHeader
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if err := s.registry.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"researcher_id": callerFrom(r)})
}

type setPublicKeyRequest struct {
	PublicKey string `json:"public_key"` // base64
}

func (s *Server) handleSetPublicKey(w http.ResponseWriter, r *http.Request) {
	var req setPublicKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed request body"))
		return
	}
	publicKey, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, apierr.New(apierr.BadKey, "public key is not valid base64"))
		return
	}
	if err := s.registry.SetPublicKey(r.Context(), callerFrom(r), publicKey); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookupPublicKey(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	caller := callerFrom(r)
	if caller == "" {
		caller = r.RemoteAddr
	}
	if err := s.limiter.CheckLookup(r.Context(), caller, targetID); err != nil {
		writeError(w, err)
		return
	}
	publicKey, err := s.registry.LookupPublicKey(r.Context(), targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"researcher_id": targetID,
		"public_key":    base64.StdEncoding.EncodeToString(publicKey),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if err := s.limiter.CheckLookup(r.Context(), callerFrom(r), ""); err != nil {
		writeError(w, err)
		return
	}
	results, err := s.registry.Search(r.Context(), prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
