package apierr

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// HTTPResponse is the JSON body of every error reply.
type HTTPResponse struct {
	Timestamp      time.Time `json:"timestamp"`
	HTTPStatusCode int       `json:"httpStatusCode"`
	HTTPStatus     string    `json:"httpStatus"`
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
}

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteStatus writes an error body for status with message.
func WriteStatus(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, HTTPResponse{
		Timestamp:      time.Now().UTC(),
		HTTPStatusCode: status,
		HTTPStatus:     strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		Reason:         strings.ToUpper(http.StatusText(status)),
		Message:        message,
	})
}

// WriteError classifies err and writes the matching error body.
func WriteError(w http.ResponseWriter, err error) Outcome {
	outcome, message := Classify(err)
	WriteStatus(w, outcome.Status(), message)
	return outcome
}
