package server

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"task-file-drop/internal/store"
)

type filesResp struct {
	Files []store.FileRecord `json:"files"`
}

// handleFiles handles GET /uploadfiles/{taskId}: every record stored for the
// task, payloads included, or 404 when there are none.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	taskID, err := taskIDParam(r)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "malformed taskId", codeBadRequest)
		return
	}

	records, err := s.uploads.Files(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filesResp{Files: records})
}

// taskIDParam returns the decoded {taskId}. chi routes on RawPath when the
// request has one (an escaped "/" for instance), and the param is then still
// encoded; otherwise it comes from the already decoded Path and must not be
// unescaped again.
func taskIDParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "taskId")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	return url.PathUnescape(raw)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   "server is running",
		"status": http.StatusOK,
	})
}
