// Package httpapi wires the Identity & Key Registry, Blob Store, and
// Share Ledger services onto an HTTP surface: gorilla/mux routing,
// bearer-session middleware, and a multipart upload handler.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/Sansi-28/byteguard/internal/blobstore"
	"github.com/Sansi-28/byteguard/internal/ledger"
	"github.com/Sansi-28/byteguard/internal/ratelimit"
	"github.com/Sansi-28/byteguard/internal/registry"
)

type contextKey string

const researcherIDKey contextKey = "researcherID"

// Server holds every service the HTTP surface dispatches to.
type Server struct {
	registry  *registry.Service
	sessions  *registry.Sessions
	blobstore *blobstore.Service
	ledger    *ledger.Service
	limiter   *ratelimit.Limiter
	log       hclog.Logger
}

// NewServer constructs a Server. limiter may be nil, disabling rate
// limiting.
func NewServer(reg *registry.Service, sessions *registry.Sessions, blobs *blobstore.Service, shares *ledger.Service, limiter *ratelimit.Limiter, log hclog.Logger) *Server {
	return &Server{
		registry:  reg,
		sessions:  sessions,
		blobstore: blobs,
		ledger:    shares,
		limiter:   limiter,
		log:       log,
	}
}

// Router builds the gorilla/mux router for every route this server
// exposes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	router.HandleFunc("/api/identities/register", s.handleRegister).Methods("POST")
	router.HandleFunc("/api/identities/login", s.handleLogin).Methods("POST")
	router.HandleFunc("/api/identities/logout", s.authMiddleware(s.handleLogout)).Methods("POST")
	router.HandleFunc("/api/identities/me", s.authMiddleware(s.handleSession)).Methods("GET")
	router.HandleFunc("/api/identities/public-key", s.authMiddleware(s.handleSetPublicKey)).Methods("PUT")
	router.HandleFunc("/api/identities/{id}/public-key", s.handleLookupPublicKey).Methods("GET")
	router.HandleFunc("/api/identities/search", s.authMiddleware(s.handleSearch)).Methods("GET")

	router.HandleFunc("/api/files", s.authMiddleware(s.handleUpload)).Methods("POST")
	router.HandleFunc("/api/files", s.authMiddleware(s.handleListMyFiles)).Methods("GET")
	router.HandleFunc("/api/files/{id}", s.authMiddleware(s.handleDownload)).Methods("GET")
	router.HandleFunc("/api/files/{id}/metadata", s.authMiddleware(s.handleFileMetadata)).Methods("GET")
	router.HandleFunc("/api/files/{id}", s.authMiddleware(s.handleDeleteFile)).Methods("DELETE")

	router.HandleFunc("/api/shares", s.authMiddleware(s.handleCreateDirectShare)).Methods("POST")
	router.HandleFunc("/api/shares/outgoing", s.authMiddleware(s.handleListOutgoing)).Methods("GET")
	router.HandleFunc("/api/shares/incoming", s.authMiddleware(s.handleListIncoming)).Methods("GET")
	router.HandleFunc("/api/shares/{id}/revoke", s.authMiddleware(s.handleRevoke)).Methods("POST")
	router.HandleFunc("/api/shares/fetch/{code}", s.authMiddleware(s.handleFetchByCode)).Methods("GET")

	router.HandleFunc("/api/groups", s.authMiddleware(s.handleCreateGroup)).Methods("POST")
	router.HandleFunc("/api/groups/{id}/members", s.authMiddleware(s.handleAddMember)).Methods("POST")
	router.HandleFunc("/api/groups/{id}/members/{researcherID}", s.authMiddleware(s.handleRemoveMember)).Methods("DELETE")
	router.HandleFunc("/api/groups/{id}/public-keys", s.authMiddleware(s.handleListGroupPublicKeys)).Methods("GET")
	router.HandleFunc("/api/groups/{id}/shares", s.authMiddleware(s.handleCreateGroupShare)).Methods("POST")
	router.HandleFunc("/api/groups/{id}/shares", s.authMiddleware(s.handleListGroupShares)).Methods("GET")

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the bearer token into a researcher-id and adds
// it to the request context; 401 on a missing or unknown session.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := authHeader
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}

		researcherID, err := s.sessions.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), researcherIDKey, researcherID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func callerFrom(r *http.Request) string {
	id, _ := r.Context().Value(researcherIDKey).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
