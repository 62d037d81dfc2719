package httpapi

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blobgate/blobgate/internal/backend"
	"github.com/blobgate/blobgate/internal/metadatastore"
	"github.com/blobgate/blobgate/internal/objerr"
	"github.com/blobgate/blobgate/internal/service"
)

// bucketBody is the JSON representation of a Bucket over the wire.
type bucketBody struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toBucketBody(b metadatastore.Bucket) bucketBody {
	return bucketBody{ID: b.ID, Name: b.Name, CreatedAt: b.CreatedAt}
}

// objectMetadataBody is the JSON representation of ObjectMetadata.
type objectMetadataBody struct {
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"content_type,omitempty"`
	ETag           string            `json:"etag"`
	LastModified   time.Time         `json:"last_modified"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

func toObjectMetadataBody(m backend.ObjectMetadata) objectMetadataBody {
	return objectMetadataBody{
		Key:            m.Key,
		Size:           m.Size,
		ContentType:    m.ContentType,
		ETag:           m.ETag,
		LastModified:   m.LastModified,
		CustomMetadata: m.CustomMetadata,
	}
}

// writeError maps an error to its HTTP status and writes a JSON envelope
// {"error": {"kind": ..., "message": ...}}.
func writeError(w http.ResponseWriter, err error) {
	kind := objerr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), map[string]any{
		"error": map[string]string{
			"kind":    kind.String(),
			"message": err.Error(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// contentTypeFromRequest reads Content-Type from the request header, falling
// back to an extension-based guess from the object key.
func contentTypeFromRequest(r *http.Request, key string) string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return ""
}

// handlePutObject handles PUT /buckets/{bucket}/objects/*key.
func (h *Handlers) handlePutObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	meta, err := h.svc.PutObject(r.Context(), bucket, key, r.Body, contentTypeFromRequest(r, key), extractCustomMetadata(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObjectMetadataBody(meta))
}

// writeObjectHeaders sets the standard object response headers from
// metadata, per spec.md §6.
func writeObjectHeaders(w http.ResponseWriter, m backend.ObjectMetadata) {
	if m.ContentType != "" {
		w.Header().Set("Content-Type", m.ContentType)
	}
	w.Header().Set("ETag", m.ETag)
	w.Header().Set("Last-Modified", m.LastModified.Format(time.RFC1123Z))
	w.Header().Set("Content-Length", strconv.FormatInt(m.Size, 10))
	for k, v := range m.CustomMetadata {
		w.Header().Set("x-object-meta-"+k, v)
	}
}

// handleGetObject handles GET /buckets/{bucket}/objects/*key.
func (h *Handlers) handleGetObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	data, err := h.svc.GetObject(r.Context(), bucket, key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer data.Body.Close()

	writeObjectHeaders(w, data.ObjectMetadata)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, data.Body)
}

// handleHeadObject handles HEAD /buckets/{bucket}/objects/*key.
func (h *Handlers) handleHeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	meta, err := h.svc.HeadObject(r.Context(), bucket, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeObjectHeaders(w, meta)
	w.WriteHeader(http.StatusOK)
}

// handleDeleteObject handles DELETE /buckets/{bucket}/objects/*key.
func (h *Handlers) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	if err := h.svc.DeleteObject(r.Context(), bucket, key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListObjects handles GET /buckets/{bucket}/objects.
func (h *Handlers) handleListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	q := r.URL.Query()
	prefix := q.Get("prefix")
	maxKeys := 0
	if v := q.Get("max_keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxKeys = n
		}
	}

	objects, err := h.svc.ListObjects(r.Context(), bucket, prefix, maxKeys)
	if err != nil {
		writeError(w, err)
		return
	}
	bodies := make([]objectMetadataBody, len(objects))
	for i, o := range objects {
		bodies[i] = toObjectMetadataBody(o)
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": bodies})
}

// handleObjectInfo handles GET /buckets/{bucket}/object-info/*key.
func (h *Handlers) handleObjectInfo(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	meta, err := h.svc.HeadObject(r.Context(), bucket, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toObjectMetadataBody(meta))
}

const defaultPublicURLExpirationSecs = 3600

// handlePublicURL handles GET /buckets/{bucket}/public-url/*key.
func (h *Handlers) handlePublicURL(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	q := r.URL.Query()

	expirationSecs := defaultPublicURLExpirationSecs
	if v := q.Get("expiration_secs"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			expirationSecs = n
		}
	}

	purpose := backend.PurposeRetrieve
	if strings.EqualFold(q.Get("purpose"), "Upload") {
		purpose = backend.PurposeUpload
	}

	url, err := h.svc.GetPublicURL(r.Context(), bucket, key, time.Duration(expirationSecs)*time.Second, purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": expirationSecs,
	})
}

// Handlers bundles the Service and ambient context every route needs.
type Handlers struct {
	svc         *service.Service
	backendKind string
}

// NewHandlers constructs Handlers for the given service and the configured
// backend kind (surfaced in /health).
func NewHandlers(svc *service.Service, backendKind string) *Handlers {
	return &Handlers{svc: svc, backendKind: backendKind}
}

