package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"task-file-drop/internal/logging"
	"task-file-drop/internal/uploads"
)

const defaultMimeType = "application/octet-stream"

type uploadResp struct {
	Message  string `json:"message"`
	NewFiles int    `json:"newFiles,omitempty"`
	Status   string `json:"status,omitempty"`
}

// handleUpload handles POST /uploadfiles.
//
// Form fields: taskId (text) and files (one part per file, repeatable).
// Files whose name is already stored for the task are skipped; the rest are
// inserted as one batch. A request where nothing is new still answers 200,
// with status "exist".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	// A non-multipart body simply carries no files; the service reports it.
	if err := r.ParseMultipartForm(s.cfg.MultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.log.Warn(r.Context(), "multipart parse failed", nil, err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			writeError(w, err)
			return
		}
		writeError(w, fmt.Errorf("%w: %w", errBadMultipart, err))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	taskID := r.FormValue("taskId")

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}

	files, err := readFiles(headers)
	if err != nil {
		s.log.Error(r.Context(), "reading uploaded part failed", logging.Fields{"task_id": taskID}, err)
		writeError(w, err)
		return
	}

	res, err := s.uploads.Upload(r.Context(), taskID, files)
	if err != nil {
		writeError(w, err)
		return
	}

	if res.Outcome == uploads.AlreadyExists {
		writeJSON(w, http.StatusOK, uploadResp{
			Message: "files already exist for this taskId",
			Status:  res.Outcome.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, uploadResp{
		Message:  "files uploaded successfully",
		NewFiles: res.NewFiles,
	})
}

// readFiles loads every part fully; records carry their payload inline.
func readFiles(headers []*multipart.FileHeader) ([]uploads.File, error) {
	files := make([]uploads.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", fh.Filename, err)
		}
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = defaultMimeType
		}
		files = append(files, uploads.File{
			Name:     fh.Filename,
			MimeType: mimeType,
			Size:     fh.Size,
			Data:     data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
