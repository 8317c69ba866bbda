package server

import (
	"errors"
	"mime/multipart"
	"net/http"

	"task-file-drop/internal/uploads"
)

// Error codes carried in the "error" field of every failure body.
const (
	codeMissingParameter = "missing_parameter"
	codeNoFilesProvided  = "no_files_provided"
	codeNotFound         = "not_found"
	codeStorageFailure   = "storage_failure"
	codeBadRequest       = "bad_request"
	codePayloadTooLarge  = "payload_too_large"
	codeTooManyFiles     = "too_many_files"
	codeInternal         = "internal_error"
)

// errBadMultipart marks a body that could not be parsed as multipart form data.
var errBadMultipart = errors.New("malformed multipart body")

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// writeError maps service and transport errors onto status codes. Storage
// causes stay in the logs; the client only sees the category.
func writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, uploads.ErrMissingParameter):
		writeErrorBody(w, http.StatusBadRequest, uploads.ErrMissingParameter.Error(), codeMissingParameter)
	case errors.Is(err, uploads.ErrNoFilesProvided):
		writeErrorBody(w, http.StatusBadRequest, uploads.ErrNoFilesProvided.Error(), codeNoFilesProvided)
	case errors.Is(err, uploads.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, uploads.ErrNotFound.Error(), codeNotFound)
	case errors.Is(err, uploads.ErrTooManyFiles):
		writeErrorBody(w, http.StatusRequestEntityTooLarge, uploads.ErrTooManyFiles.Error(), codeTooManyFiles)
	case errors.Is(err, uploads.ErrStorageFailure):
		writeErrorBody(w, http.StatusInternalServerError, "failed to access file storage", codeStorageFailure)
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		writeErrorBody(w, http.StatusRequestEntityTooLarge, "request body too large", codePayloadTooLarge)
	case errors.Is(err, errBadMultipart):
		writeErrorBody(w, http.StatusBadRequest, errBadMultipart.Error(), codeBadRequest)
	default:
		writeErrorBody(w, http.StatusInternalServerError, "internal server error", codeInternal)
	}
}

func writeErrorBody(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorBody{Message: message, Error: code})
}
