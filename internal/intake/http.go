package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/catalog"
	"github.com/fpang/media-pipeline/internal/request"
)

// DefaultMaxUpload bounds a multipart upload held in memory.
const DefaultMaxUpload int64 = 100 << 20

// NewHandler returns the intake HTTP API.
func NewHandler(s *Service) http.Handler {
	h := &handler{svc: s, maxUpload: DefaultMaxUpload}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/types", h.types)
	mux.HandleFunc("GET /api/media", h.list)
	mux.HandleFunc("POST /api/media", h.upload)
	mux.HandleFunc("GET /api/media/{id}", h.get)
	mux.HandleFunc("DELETE /api/media/{id}", h.remove)
	mux.HandleFunc("POST /api/media/{id}/process", h.process)
	mux.HandleFunc("POST /api/media/{id}/refresh", h.refresh)
	mux.HandleFunc("POST /api/process", h.submit)
	return withRequestLog(withMetrics(mux))
}

type handler struct {
	svc       *Service
	maxUpload int64
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. Optional internal details are
// logged server-side and never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// fail maps a service error to a status code.
func fail(w http.ResponseWriter, err error) {
	switch {
	case request.IsClientError(err), errors.Is(err, ErrInvalidUpload):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		httpError(w, http.StatusNotFound, "media item not found")
	case errors.Is(err, request.ErrSourceNotFound):
		httpError(w, http.StatusNotFound, "source object not found")
	case errors.Is(err, request.ErrTransformFailure):
		httpError(w, http.StatusUnprocessableEntity, "media could not be processed", err.Error())
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "media-pipeline",
	})
}

func (h *handler) types(w http.ResponseWriter, r *http.Request) {
	types := request.AllTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	respondJSON(w, http.StatusOK, map[string][]string{"processingTypes": out})
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if items == nil {
		items = []*catalog.MediaItem{}
	}
	respondJSON(w, http.StatusOK, items)
}

// POST /api/media with a multipart "file" field.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload))
			return
		}
		httpError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	item, err := h.svc.Upload(r.Context(), header.Filename, contentType, data)
	if err != nil {
		fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/media/{id}/process?type=FILTER with optional JSON parameters.
func (h *handler) process(w http.ResponseWriter, r *http.Request) {
	processingType := r.URL.Query().Get("type")
	if processingType == "" {
		httpError(w, http.StatusBadRequest, "query parameter \"type\" is required")
		return
	}
	params, err := decodeParams(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Queue(r.Context(), r.PathValue("id"), processingType, params)
	if err != nil {
		fail(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, res)
}

func decodeParams(r *http.Request) (map[string]string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]string{}, nil
	}
	var params map[string]string
	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON object of strings")
	}
	return params, nil
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// POST /api/process with a wire-format request body. ?sync=false queues
// image and analysis requests instead of running them inline.
func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	req, err := request.Decode(body)
	if err != nil {
		fail(w, err)
		return
	}
	sync := true
	if v := r.URL.Query().Get("sync"); v != "" {
		if sync, err = strconv.ParseBool(v); err != nil {
			httpError(w, http.StatusBadRequest, "sync must be a boolean")
			return
		}
	}
	res, err := h.svc.Submit(r.Context(), req, sync)
	if err != nil {
		fail(w, err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}
