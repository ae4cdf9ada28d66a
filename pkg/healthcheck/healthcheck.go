/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package healthcheck reports whether the service and its database are reachable.
package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fastqueue/fastqueue/internal/pkg/log"
)

var logger = log.New("healthcheck")

const (
	healthCheckEndpoint = "/healthcheck"

	statusSuccess      = "success"
	statusNotConnected = "not connected"
)

type db interface {
	Ping(ctx context.Context) error
}

// Handler implements a health check HTTP handler.
type Handler struct {
	db db
}

// NewHandler returns a new health check handler.
func NewHandler(db db) *Handler {
	return &Handler{db: db}
}

// Method returns the HTTP method.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Path returns the path of the endpoint.
func (h *Handler) Path() string {
	return healthCheckEndpoint
}

// Handler returns the HTTP handler function.
func (h *Handler) Handler() http.HandlerFunc {
	return h.checkHealth
}

type response struct {
	Status      string    `json:"status"`
	DBStatus    string    `json:"db_status"`
	CurrentTime time.Time `json:"current_time"`
}

func (h *Handler) checkHealth(rw http.ResponseWriter, req *http.Request) {
	resp := &response{
		Status:      statusSuccess,
		DBStatus:    statusSuccess,
		CurrentTime: time.Now().UTC(),
	}

	status := http.StatusOK

	if err := h.db.Ping(req.Context()); err != nil {
		logger.Warnf("Health check failed: %s", err)

		resp.Status = statusNotConnected
		resp.DBStatus = statusNotConnected
		status = http.StatusServiceUnavailable
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		logger.Errorf("Error writing health check response: %s", err)
	}
}
