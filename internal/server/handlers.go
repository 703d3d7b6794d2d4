package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fulfillment/internal/models"
)

const (
	defaultDLQLimit = 10
	maxDLQLimit     = 100
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// DeadLetterResponse is the body of GET /dlq
type DeadLetterResponse struct {
	Count    int                        `json:"count"`
	Messages []models.DeadLetterMessage `json:"messages"`
}

// ReplayResponse is the body of POST /dlq/replay
type ReplayResponse struct {
	Replayed int `json:"replayed"`
}

// handleGetOrder handles GET /orders/{order_uuid} requests
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	orderUUID := strings.TrimSpace(r.PathValue("order_uuid"))
	if orderUUID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Order UUID is required", "")
		return
	}

	order, err := s.orders.GetOrder(r.Context(), orderUUID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			s.writeErrorResponse(w, http.StatusNotFound, "Order not found", orderUUID)
			return
		}

		s.logger.Error().
			Err(err).
			Str("order_uuid", orderUUID).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Failed to get order")

		s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if order == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "Order not found", orderUUID)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, order)
}

// handlePeekDeadLetters handles GET /dlq?limit=N requests
func (s *Server) handlePeekDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	count, err := s.dlq.Count(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to count dead-letter queue")
		s.writeErrorResponse(w, http.StatusBadGateway, "Broker unavailable", "")
		return
	}

	messages, err := s.dlq.Peek(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Int("limit", limit).Msg("Failed to peek dead-letter queue")
		s.writeErrorResponse(w, http.StatusBadGateway, "Broker unavailable", "")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, DeadLetterResponse{Count: count, Messages: messages})
}

// handleReplayDeadLetters handles POST /dlq/replay?limit=N requests
func (s *Server) handleReplayDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	replayed, err := s.dlq.Replay(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Int("replayed", replayed).Msg("Failed to replay dead-letter queue")
		s.writeErrorResponse(w, http.StatusBadGateway, "Replay interrupted", strconv.Itoa(replayed)+" replayed")
		return
	}

	s.logger.Info().Int("replayed", replayed).Msg("Dead-letter queue replayed")
	s.writeJSONResponse(w, http.StatusOK, ReplayResponse{Replayed: replayed})
}

// handleHealth handles GET /health requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// parseLimit reads the limit query parameter, capped at maxDLQLimit
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultDLQLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxDLQLimit), nil
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response in JSON format
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	errorResp := ErrorResponse{
		Error:   message,
		Message: details,
	}

	s.writeJSONResponse(w, statusCode, errorResp)
}
