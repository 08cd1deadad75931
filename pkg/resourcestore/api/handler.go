package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-resource/pkg/resourcestore"
	"github.com/tendant/simple-resource/pkg/resourcestore/presigned"
)

// maxMultipartMemory is the part of a multipart upload kept in memory; the
// rest spills to temporary files.
const maxMultipartMemory = 32 << 20

// Store is the part of *resourcestore.Store the handler serves.
type Store interface {
	resourcestore.Resolver
	Codec() resourcestore.Codec
	ListNames(ctx context.Context, ownerID uint64) ([]string, error)
	ListSummaries(ctx context.Context, ownerID uint64) ([]resourcestore.ObjectSummary, error)
	ShareableURLFor(ctx context.Context, key string, ttl time.Duration) (string, error)
	LinkTTL() time.Duration
}

// ResourceHandler serves owner-scoped resources over HTTP
type ResourceHandler struct {
	store  Store
	logger *slog.Logger
}

func NewResourceHandler(store Store, logger *slog.Logger) *ResourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceHandler{store: store, logger: logger}
}

// Routes returns the router for resource endpoints
func (h *ResourceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/owners/{ownerID}", func(r chi.Router) {
		r.Get("/resources", h.ListNames)
		r.Get("/summaries", h.ListSummaries)
		r.Post("/resources", h.UploadMultipart)
		r.Post("/resources/base64", h.UploadBase64)
		r.Head("/resources/*", h.HeadResource)
		r.Get("/resources/*", h.GetResource)
		r.Put("/resources/*", h.PutResource)
		r.Delete("/resources/*", h.DeleteResource)
	})
	r.Delete("/directories", h.DeleteDirectory)
	r.Get("/directories/{contentType}/*", h.DirectorySummary)
	r.Post("/copies", h.Copy)
	r.Get("/links", h.CreateLink)
	return r
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ListNamesResponse lists an owner's resource names relative to its folder
type ListNamesResponse struct {
	OwnerID uint64   `json:"owner_id"`
	Names   []string `json:"names"`
}

// SummaryResponse is one object summary
type SummaryResponse struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// CreatedResponse reports the key a write landed on
type CreatedResponse struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Base64UploadRequest carries base64 or data-URI encoded content
type Base64UploadRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// CopyRequest copies src to dst inside one content type directory
type CopyRequest struct {
	ContentType string `json:"content_type"`
	Src         string `json:"src"`
	Dst         string `json:"dst"`
}

// LinkResponse is a time-limited read link
type LinkResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *ResourceHandler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message, Code: code})
}

// writeStoreError maps the storage error taxonomy onto HTTP statuses.
func (h *ResourceHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resourcestore.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, resourcestore.ErrAlreadyExists):
		h.writeError(w, r, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, resourcestore.ErrMalformed), errors.Is(err, resourcestore.ErrInvalidPrefix):
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, resourcestore.ErrUnavailable):
		h.writeError(w, r, http.StatusBadGateway, "unavailable", "storage backend unavailable")
	default:
		h.logger.Error("Unexpected storage error", "path", r.URL.Path, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (h *ResourceHandler) ownerID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "ownerID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid owner ID")
		return 0, false
	}
	return id, true
}

func (h *ResourceHandler) resourceName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "*")
	// chi routes on RawPath when the request carries escaped slashes.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid resource name")
			return "", false
		}
		name = unescaped
	}
	if name == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Resource name is required")
		return "", false
	}
	return name, true
}

// ListNames returns the owner's resource names
func (h *ResourceHandler) ListNames(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	names, err := h.store.ListNames(r.Context(), ownerID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.JSON(w, r, ListNamesResponse{OwnerID: ownerID, Names: names})
}

// ListSummaries returns the owner's object summaries
func (h *ResourceHandler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	summaries, err := h.store.ListSummaries(r.Context(), ownerID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	resp := make([]SummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, SummaryResponse{Key: s.Key, Size: s.Size, LastModified: s.LastModified, ETag: s.ETag})
	}
	render.JSON(w, r, resp)
}

// HeadResource answers 200 when the resource exists and 404 otherwise
func (h *ResourceHandler) HeadResource(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	name, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	exists, err := h.store.ExistsIn(r.Context(), ownerID, name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetResource streams the resource body with its stored content type
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	name, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	obj, found, err := h.store.GetIn(r.Context(), ownerID, name)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	h.stream(w, obj)
}

func (h *ResourceHandler) stream(w http.ResponseWriter, obj *resourcestore.Object) {
	defer obj.Body.Close()
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("Failed to stream resource", "key", obj.Key, "error", err)
	}
}

// PutResource creates the resource from the request body; it never overwrites
func (h *ResourceHandler) PutResource(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	name, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	if err := h.store.PutIn(r.Context(), ownerID, name, r.Header.Get("Content-Type"), r.Body); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{Key: h.store.Codec().Join(ownerID, name), Name: name})
}

// UploadMultipart stores the "file" part of a multipart form. The resource
// name comes from the "name" field, then the file name, then a random UUID.
func (h *ResourceHandler) UploadMultipart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Missing file part")
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	if name == "" {
		name = uuid.NewString()
	}

	if err := h.store.PutIn(r.Context(), ownerID, name, header.Header.Get("Content-Type"), file); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{Key: h.store.Codec().Join(ownerID, name), Name: name})
}

// UploadBase64 stores base64 or data-URI content
func (h *ResourceHandler) UploadBase64(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	var req Base64UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Name is required")
		return
	}
	// The store skips undecodable payloads silently; reject them here so
	// HTTP clients learn about it.
	if _, err := resourcestore.DecodeBase64(req.Data); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	if err := h.store.PutBase64In(r.Context(), ownerID, req.Name, req.MimeType, req.Data); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{Key: h.store.Codec().Join(ownerID, req.Name), Name: req.Name})
}

// DeleteResource removes the resource; deleting a missing one succeeds
func (h *ResourceHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	name, ok := h.resourceName(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteIn(r.Context(), ownerID, name); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteDirectory removes every object under the prefix query parameter
func (h *ResourceHandler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "prefix is required")
		return
	}
	if err := h.store.DeleteDirectory(r.Context(), prefix); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DirectorySummary lists the files of a directory under a content type
func (h *ResourceHandler) DirectorySummary(w http.ResponseWriter, r *http.Request) {
	contentType, err := resourcestore.ParseContentFileType(chi.URLParam(r, "contentType"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	items, err := h.store.ResourcesSummary(r.Context(), contentType, chi.URLParam(r, "*"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.JSON(w, r, items)
}

// Copy duplicates a resource inside one content type directory
func (h *ResourceHandler) Copy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	contentType, err := resourcestore.ParseContentFileType(req.ContentType)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Src == "" || req.Dst == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "src and dst are required")
		return
	}

	if err := h.store.Copy(r.Context(), contentType, req.Src, req.Dst); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreatedResponse{Key: h.store.RelativePath(contentType, req.Dst), Name: req.Dst})
}

// CreateLink issues a read link for the key query parameter. An optional
// ttl (Go duration syntax) shortens the store default.
func (h *ResourceHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "key is required")
		return
	}

	var (
		link string
		ttl  time.Duration
		err  error
	)
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid ttl")
			return
		}
		link, err = h.store.ShareableURLFor(r.Context(), key, ttl)
	} else {
		ttl = h.store.LinkTTL()
		link, err = h.store.ShareableURL(r.Context(), key)
	}
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	render.JSON(w, r, LinkResponse{URL: link, ExpiresIn: int64(resourcestore.ClampTTL(ttl).Seconds())})
}

// Download streams the object whose key was verified by presigned.ValidateMiddleware
func (h *ResourceHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := presigned.KeyFromContext(r.Context())
	if key == "" {
		h.writeError(w, r, http.StatusForbidden, "forbidden", "unsigned download")
		return
	}
	obj, found, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !found {
		h.writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	h.stream(w, obj)
}
