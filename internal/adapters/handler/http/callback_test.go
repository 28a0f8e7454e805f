package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/ports"
)

// stubGateway implements ports.Gateway; only the callback path is wired.
type stubGateway struct {
	updateFn func(deploymentID string, status domain.ExecutionStatus, raw string) (domain.UpdateOutcome, error)
	calls    int
}

var _ ports.Gateway = (*stubGateway)(nil)

func (s *stubGateway) Ping(ctx context.Context) error { return nil }
func (s *stubGateway) Close() error                   { return nil }

func (s *stubGateway) MergeRobots(ctx context.Context, robots []domain.PlatformRobot) (int, error) {
	return 0, nil
}

func (s *stubGateway) MergeDevices(ctx context.Context, devices []domain.Device) (int, error) {
	return 0, nil
}

func (s *stubGateway) EligibleRobots(ctx context.Context) ([]domain.LaunchCandidate, error) {
	return nil, nil
}

func (s *stubGateway) InsertExecution(ctx context.Context, exec *domain.Execution) error { return nil }

func (s *stubGateway) InFlightExecutions(ctx context.Context, minAge time.Duration) ([]domain.Execution, error) {
	return nil, nil
}

func (s *stubGateway) ApplyDeploymentStatuses(ctx context.Context, statuses []domain.DeploymentStatus) (int64, error) {
	return 0, nil
}

func (s *stubGateway) IncrementFailedAttempts(ctx context.Context, deploymentIDs []string) (int64, error) {
	return 0, nil
}

func (s *stubGateway) EscalateToUnknown(ctx context.Context, maxFailedAttempts int) (int64, error) {
	return 0, nil
}

func (s *stubGateway) UpdateExecutionFromExternalStatus(ctx context.Context, deploymentID string, status domain.ExecutionStatus, rawPayload string) (domain.UpdateOutcome, error) {
	s.calls++
	if s.updateFn != nil {
		return s.updateFn(deploymentID, status, rawPayload)
	}
	return domain.UpdateOutcomeUpdated, nil
}

func (s *stubGateway) RobotName(ctx context.Context, robotID int64) (string, error) { return "", nil }

func (s *stubGateway) DeviceInfo(ctx context.Context, deviceID int64) (*domain.Device, error) {
	return nil, nil
}

const testSecret = "cb-secret"

func postCallback(t *testing.T, h *CallbackHandler, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/callback", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Authorization", secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallbackRejectsBadSecret(t *testing.T) {
	gw := &stubGateway{}
	h := NewCallbackHandler(gw, testSecret)

	if rec := postCallback(t, h, `{"deploymentId":"d1","status":"COMPLETED"}`, "wrong"); rec.Code != 401 {
		t.Errorf("wrong secret: code = %d, want 401", rec.Code)
	}
	if rec := postCallback(t, h, `{"deploymentId":"d1","status":"COMPLETED"}`, ""); rec.Code != 401 {
		t.Errorf("missing secret: code = %d, want 401", rec.Code)
	}
	if gw.calls != 0 {
		t.Error("unauthorized requests must never reach the gateway")
	}

	// A handler without a configured secret accepts nothing.
	open := NewCallbackHandler(gw, "")
	if rec := postCallback(t, open, `{"deploymentId":"d1","status":"COMPLETED"}`, ""); rec.Code != 401 {
		t.Errorf("empty configured secret: code = %d, want 401", rec.Code)
	}
}

func TestCallbackOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome domain.UpdateOutcome
		want    string
	}{
		{"updated", domain.UpdateOutcomeUpdated, "UPDATED"},
		{"already processed", domain.UpdateOutcomeAlreadyProcessed, "ALREADY_PROCESSED"},
		{"not found", domain.UpdateOutcomeNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{
				updateFn: func(string, domain.ExecutionStatus, string) (domain.UpdateOutcome, error) {
					return tt.outcome, nil
				},
			}
			h := NewCallbackHandler(gw, testSecret)

			rec := postCallback(t, h, `{"deploymentId":"d1","status":"COMPLETED"}`, testSecret)
			if rec.Code != 200 {
				t.Fatalf("code = %d, want 200 for every outcome", rec.Code)
			}
			var body map[string]string
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["result"] != tt.want {
				t.Errorf("result = %q, want %q", body["result"], tt.want)
			}
		})
	}
}

func TestCallbackValidation(t *testing.T) {
	gw := &stubGateway{}
	h := NewCallbackHandler(gw, testSecret)

	if rec := postCallback(t, h, `{not json`, testSecret); rec.Code != 400 {
		t.Errorf("malformed JSON: code = %d, want 400", rec.Code)
	}
	if rec := postCallback(t, h, `{"status":"COMPLETED"}`, testSecret); rec.Code != 400 {
		t.Errorf("missing deploymentId: code = %d, want 400", rec.Code)
	}
	if rec := postCallback(t, h, `{"deploymentId":"d1","status":"NO_SUCH"}`, testSecret); rec.Code != 400 {
		t.Errorf("unknown status: code = %d, want 400", rec.Code)
	}
	if gw.calls != 0 {
		t.Error("invalid requests must never reach the gateway")
	}
}

func TestCallbackStoresRawPayload(t *testing.T) {
	var gotRaw string
	var gotStatus domain.ExecutionStatus
	gw := &stubGateway{
		updateFn: func(id string, status domain.ExecutionStatus, raw string) (domain.UpdateOutcome, error) {
			gotStatus = status
			gotRaw = raw
			return domain.UpdateOutcomeUpdated, nil
		},
	}
	h := NewCallbackHandler(gw, testSecret)

	body := `{"deploymentId":"d1","status":"RUN_FAILED","botOutput":{"detail":"step 4"}}`
	if rec := postCallback(t, h, body, testSecret); rec.Code != 200 {
		t.Fatalf("code = %d", rec.Code)
	}
	if gotStatus != domain.ExecutionStatusRunFailed {
		t.Errorf("status = %s, want RUN_FAILED", gotStatus)
	}
	if gotRaw != body {
		t.Errorf("raw payload must be stored verbatim, got %q", gotRaw)
	}
}
