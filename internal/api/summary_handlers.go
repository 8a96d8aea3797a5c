package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/battlebrief/bulwark/internal/core"
	"github.com/battlebrief/bulwark/internal/store"
)

const multipartMemory = 8 << 20

type SummariesResponse struct {
	Summaries []store.Summary `json:"summaries"`
}

type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

// ownerID prefers the authenticated user over the client-supplied id.
func ownerID(r *http.Request, supplied string) string {
	if u := userFromContext(r.Context()); u != nil {
		return u.Username
	}
	return strings.TrimSpace(supplied)
}

// SummarizeHandler answers with one entry per uploaded file: either the
// summary with its metadata or an error string.
func (h *APIHandler) SummarizeHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	userID := ownerID(r, r.FormValue("user_id"))
	model := strings.TrimSpace(r.FormValue("model"))
	switch {
	case userID == "":
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	case model == "":
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "At least one file is required")
		return
	}

	uploads := make([]core.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, core.Upload{
			Filename: fh.Filename,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	items := h.summaries.SummarizeBatch(r.Context(), userID, model, uploads)
	out := make(map[string]any, len(items))
	for _, item := range items {
		switch {
		case item.Err == nil:
			out[item.Filename] = item.Result
		case errors.Is(item.Err, core.ErrUnsupportedFile):
			out[item.Filename] = "file not supported"
		default:
			out[item.Filename] = "Error: " + item.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListSummariesHandler never fails: storage errors yield an empty list.
func (h *APIHandler) ListSummariesHandler(w http.ResponseWriter, r *http.Request) {
	userID := ownerID(r, r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	summaries, err := h.summaries.ListSummaries(r.Context(), userID)
	if err != nil {
		h.log.Error("Failed to fetch summaries", "user_id", userID, "error", err)
		summaries = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, SummariesResponse{Summaries: summaries})
}

func (h *APIHandler) DeleteSummaryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "summaryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid summary id")
		return
	}

	// Deleting an id that is already gone still answers {deleted: id}.
	err = h.summaries.DeleteSummary(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.log.Debug("Summary already absent", "summary_id", id)
	case err != nil:
		h.log.Error("Failed to delete summary", "summary_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not delete summary")
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{Deleted: id})
}
