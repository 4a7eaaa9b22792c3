package presenter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/google/magic-github-proxy/internal/logging"
	"github.com/google/magic-github-proxy/internal/service"
)

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

// Text writes body as-is with the given content type.
func Text(w http.ResponseWriter, r *http.Request, contentType, body string, status int) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	resp := ErrorResponse{
		Error:         msg,
		CorrelationID: logging.CorrelationID(r.Context()),
	}
	JSON(w, r, resp, status)
}

// Err renders err with the status of a wrapped service.HTTPError, 400 otherwise.
// short prefixes the message unless empty.
func Err(w http.ResponseWriter, r *http.Request, err error, short string) {
	status := http.StatusBadRequest // generic default status
	var httpError *service.HTTPError
	if errors.As(err, &httpError) {
		status = httpError.StatusCode
	}
	msg := err.Error()
	if short != "" {
		msg = short + ": " + msg
	}
	Error(w, r, msg, status)
}
