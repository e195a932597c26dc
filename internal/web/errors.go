package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/csvpress/csvpress/internal/importer"
	"github.com/csvpress/csvpress/internal/logging"
)

// envelope is the uniform response shape: {success, data | error}.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// respond writes a success envelope.
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		logging.FromContext(r.Context()).Error("encoding response", "error", err)
	}
}

// respondError maps err to a coded user message and picks the HTTP status
// from the error class. Validation failures additionally carry the full
// error list so clients can show every problem at once.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	var ve *importer.ValidationError
	if errors.As(err, &ve) {
		logger.Info("request rejected by validation", "errors", len(ve.Result.Errors))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		payload := struct {
			Success bool                      `json:"success"`
			Error   *errorBody                `json:"error"`
			Data    importer.ValidationResult `json:"data"`
		}{
			Success: false,
			Error: &errorBody{
				Code:    "CFG001",
				Message: "The import configuration is invalid",
				Action:  "Fix every listed problem and try again",
			},
			Data: ve.Result,
		}
		if encErr := json.NewEncoder(w).Encode(payload); encErr != nil {
			logger.Error("encoding response", "error", encErr)
		}
		return
	}

	status := statusForError(err)
	if status >= 500 {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request rejected", "error", err, "status", status)
	}

	writeFailure(w, r, status, importer.MapError(err))
}

// statusForError picks the HTTP status for an error class.
func statusForError(err error) int {
	switch {
	case errors.Is(err, importer.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, importer.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrSourceUnavailable),
		errors.Is(err, importer.ErrEmptyContent),
		errors.Is(err, importer.ErrNoData),
		errors.Is(err, importer.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	}

	var mc *importer.MissingColumnsError
	if errors.As(err, &mc) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeFailure writes a failure envelope with the given user message.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, msg importer.UserMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := envelope{
		Success: false,
		Error:   &errorBody{Code: msg.Code, Message: msg.Message, Action: msg.Action},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("encoding response", "error", err)
	}
}

// decodeJSON decodes a request body into v with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
