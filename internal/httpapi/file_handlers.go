package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Sansi-28/byteguard/internal/apierr"
	"github.com/Sansi-28/byteguard/internal/blobstore"
	"github.com/Sansi-28/byteguard/internal/models"
)

// maxUploadMemory bounds how much of a multipart body is buffered in
// memory before the remainder spills to a temp file.
const maxUploadMemory = 32 << 20

// handleUpload accepts a multipart form carrying the ciphertext blob and
// the owner-wrap KEM payload alongside plaintext-adjacent metadata the
// server is allowed to see (display name, original size, content type,
// fingerprint). The blob itself is opaque ciphertext; the server never
// sees a DEK or plaintext.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "malformed multipart body"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "missing file part"))
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.Internal, "read upload body", err))
		return
	}

	originalSize, err := strconv.ParseInt(r.FormValue("originalSize"), 10, 64)
	if err != nil {
		writeError(w, apierr.New(apierr.InvalidInput, "originalSize must be an integer"))
		return
	}

	ownerKemCt, err := base64.StdEncoding.DecodeString(r.FormValue("ownerKemCt"))
	if err != nil {
		writeError(w, apierr.New(apierr.BadPayload, "ownerKemCt is not valid base64"))
		return
	}

	fileID, err := s.blobstore.Put(r.Context(), blob, blobstore.Metadata{
		Owner:        callerFrom(r),
		DisplayName:  r.FormValue("fileName"),
		OriginalSize: originalSize,
		ContentType:  r.FormValue("contentType"),
		Fingerprint:  r.FormValue("sha256Hash"),
		OwnerWrap:    ownerKemCt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"file_id": fileID})
}

func parseFileID(r *http.Request) (int64, error) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, apierr.New(apierr.InvalidInput, "file id must be an integer")
	}
	return id, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID, err := parseFileID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	blob, err := s.blobstore.Get(r.Context(), fileID, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

func fileRecordToJSON(rec *models.FileRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":              rec.ID,
		"owner":           rec.Owner,
		"display_name":    rec.DisplayName,
		"original_size":   rec.OriginalSize,
		"ciphertext_size": rec.CiphertextSize,
		"content_type":    rec.ContentType,
		"fingerprint":     rec.Fingerprint,
		"owner_wrap":      base64.StdEncoding.EncodeToString(rec.OwnerWrap),
		"created_at":      rec.CreatedAt,
	}
}

func (s *Server) handleFileMetadata(w http.ResponseWriter, r *http.Request) {
	fileID, err := parseFileID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	allowed, err := s.ledger.AuthorizeRead(r.Context(), fileID, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, apierr.New(apierr.Forbidden, "caller may not read this file"))
		return
	}

	rec, err := s.blobstore.Metadata(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileRecordToJSON(rec))
}

func (s *Server) handleListMyFiles(w http.ResponseWriter, r *http.Request) {
	records, err := s.blobstore.ListOwned(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, fileRecordToJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := parseFileID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.blobstore.Delete(r.Context(), fileID, callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
