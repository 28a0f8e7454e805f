package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"botfleet/internal/adapters/platform"
	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/metrics"
	"botfleet/internal/core/ports"
)

var errInvalidScheduleKind = errors.New("invalid schedule kind")

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// CallbackHandler receives completion reports pushed by the platform for
// deployments we launched. Authentication is a shared secret compared in
// constant time; every well-formed authenticated request gets a 200, even
// when the deployment id is unknown, because the sender did nothing wrong.
type CallbackHandler struct {
	gateway ports.Gateway
	secret  string
	log     *slog.Logger
}

func NewCallbackHandler(gateway ports.Gateway, secret string) *CallbackHandler {
	return &CallbackHandler{
		gateway: gateway,
		secret:  secret,
		log:     logger.With("component", "callback"),
	}
}

type callbackRequest struct {
	DeploymentID string `json:"deploymentId"`
	Status       string `json:"status"`
	DeviceID     *int64 `json:"deviceId,omitempty"`
	UserID       *int64 `json:"userId,omitempty"`
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.log.Warn("rejected callback with bad or missing secret", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", err)
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if req.DeploymentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deploymentId is required"})
		return
	}

	status, ok := platform.MapActivityStatus(req.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unrecognized status " + req.Status})
		return
	}

	outcome, err := h.gateway.UpdateExecutionFromExternalStatus(r.Context(), req.DeploymentID, status, string(raw))
	if err != nil {
		h.log.Error("failed to apply callback", "deployment_id", req.DeploymentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply status", err)
		return
	}

	if outcome == domain.UpdateOutcomeUpdated {
		metrics.ReconciledTotal.WithLabelValues("callback").Inc()
	}
	h.log.Info("callback processed",
		"deployment_id", req.DeploymentID,
		"status", status,
		"outcome", outcome.String())

	// NOT_FOUND included: the request was well formed, we just do not track
	// that deployment (yet).
	writeJSON(w, http.StatusOK, map[string]string{"result": outcome.String()})
}

func (h *CallbackHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	got := r.Header.Get("X-Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
