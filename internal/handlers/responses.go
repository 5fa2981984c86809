package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"zerorag/internal/models"

	"github.com/google/uuid"
)

// ErrorResponse is the error body returned by every endpoint
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// responder carries the JSON helpers shared by all handlers
type responder struct {
	logger *log.Logger
}

func (rp responder) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rp.logger.Printf("Failed to encode JSON response: %v", err)
	}
}

// sendError maps the error onto a status code and stable error code,
// logging the request ID so the response can be matched to the log line.
func (rp responder) sendError(w http.ResponseWriter, err error) {
	body := ErrorResponse{
		Error:     models.ErrorCode(err),
		Detail:    err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: uuid.New().String(),
	}
	status := models.HTTPStatus(err)
	rp.logger.Printf("Request failed [%s]: %d %s: %s", body.RequestID, status, body.Error, body.Detail)
	rp.sendJSON(w, status, body)
}

// sendErrorMessage is for handler-level rejections with an explicit status
func (rp responder) sendErrorMessage(w http.ResponseWriter, status int, code, detail string) {
	body := ErrorResponse{
		Error:     code,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
		RequestID: uuid.New().String(),
	}
	rp.logger.Printf("Request rejected [%s]: %d %s: %s", body.RequestID, status, code, detail)
	rp.sendJSON(w, status, body)
}

// Query/form parameter helpers

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getIntPtrQueryParam keeps absent and explicit values distinguishable, so
// "?top_k=0" still reaches validation instead of silently defaulting.
func getIntPtrQueryParam(r *http.Request, key string) *int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &intValue
}

func getFloatQueryParam(r *http.Request, key string) *float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &floatValue
}

func getBoolQueryParam(r *http.Request, key string, defaultValue bool) bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getBoolFormParam(r *http.Request, key string, defaultValue bool) bool {
	value := r.FormValue(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
