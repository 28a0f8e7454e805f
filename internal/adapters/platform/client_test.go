package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"botfleet/internal/core/domain"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		Username:     "orchestrator",
		Password:     "secret",
		Timeout:      5 * time.Second,
		TokenRefresh: time.Hour,
		PageSize:     2,
		MaxPages:     10,
	})
	return c, srv
}

func authHandler(tokenCalls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}
}

func TestFetchRobotsPaginates(t *testing.T) {
	var tokenCalls int32
	robots := []map[string]any{
		{"id": "1", "name": "P100_Invoices", "description": "a", "path": "RPA/P100"},
		{"id": "2", "name": "P200_Reports", "description": "b", "path": "RPA/P200"},
		{"id": "3", "name": "P300_Cleanup", "description": "c", "path": "RPA/P300"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(endpointAuth, authHandler(&tokenCalls))
	mux.HandleFunc(endpointFilesList, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Authorization"); got != "tok-1" {
			t.Errorf("missing auth header, got %q", got)
		}
		var req struct {
			Page struct {
				Offset int `json:"offset"`
				Length int `json:"length"`
			} `json:"page"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		end := req.Page.Offset + req.Page.Length
		if end > len(robots) {
			end = len(robots)
		}
		page := []map[string]any{}
		if req.Page.Offset < len(robots) {
			page = robots[req.Page.Offset:end]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"page": map[string]any{"totalFilter": len(robots)},
			"list": page,
		})
	})

	c, _ := testClient(t, mux)
	got, err := c.FetchRobots(context.Background())
	if err != nil {
		t.Fatalf("FetchRobots() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d robots, want 3", len(got))
	}
	if got[2].ID != 3 || got[2].Name != "P300_Cleanup" {
		t.Errorf("last robot = %+v", got[2])
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("token fetched %d times across pages, want 1", n)
	}
}

func TestTokenRefreshAfterUnauthorized(t *testing.T) {
	var tokenCalls int32
	var listCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc(endpointAuth, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{"token": fmt.Sprintf("tok-%d", n)})
	})
	mux.HandleFunc(endpointUsersList, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&listCalls, 1) == 1 {
			// First call: server revoked the token early.
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("X-Authorization"); got != "tok-2" {
			t.Errorf("second call auth = %q, want tok-2", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"page": map[string]any{"totalFilter": 0},
			"list": []any{},
		})
	})

	c, _ := testClient(t, mux)

	if _, err := c.FetchUsers(context.Background()); err == nil {
		t.Fatal("first fetch should surface the 401")
	}
	if _, err := c.FetchUsers(context.Background()); err != nil {
		t.Fatalf("second fetch after token invalidation: %v", err)
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 2 {
		t.Errorf("token fetched %d times, want 2", n)
	}
}

func TestDeploy(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(endpointAuth, authHandler(&tokenCalls))
	mux.HandleFunc(endpointDeploy, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["fileId"] != float64(42) {
			t.Errorf("fileId = %v, want 42", req["fileId"])
		}
		json.NewEncoder(w).Encode(map[string]string{"deploymentId": "dep-abc"})
	})

	c, _ := testClient(t, mux)
	id, err := c.Deploy(context.Background(), 42, []int64{7}, map[string]any{"in_NumLoops": "3"})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if id != "dep-abc" {
		t.Errorf("deployment id = %q, want dep-abc", id)
	}
}

func TestDeployRejectionCarriesBody(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(endpointAuth, authHandler(&tokenCalls))
	mux.HandleFunc(endpointDeploy, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"deploy.failure","message":"device is busy"}`))
	})

	c, _ := testClient(t, mux)
	_, err := c.Deploy(context.Background(), 1, []int64{2}, nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("want *HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d", httpErr.Status)
	}
	if !DeployRetryable(err) {
		t.Error("busy-device rejection must be retryable")
	}
}

func TestFetchStatusByDeploymentIDs(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(endpointAuth, authHandler(&tokenCalls))
	mux.HandleFunc(endpointActivity, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"list": []map[string]any{
				{"deploymentId": "d1", "status": "COMPLETED", "endDateTime": "2026-08-28T10:00:00Z"},
				{"deploymentId": "d2", "status": "UPDATE"},
				{"deploymentId": "d3", "status": "SOMETHING_NEW"},
			},
		})
	})

	c, _ := testClient(t, mux)
	got, err := c.FetchStatusByDeploymentIDs(context.Background(), []string{"d1", "d2", "d3"})
	if err != nil {
		t.Fatalf("FetchStatusByDeploymentIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d statuses, want 2 (unrecognized dropped)", len(got))
	}
	if got[0].Status != domain.ExecutionStatusRunCompleted || got[0].EndTime == nil {
		t.Errorf("d1 = %+v", got[0])
	}
	if got[1].Status != domain.ExecutionStatusLaunched {
		t.Errorf("UPDATE must map to LAUNCHED, got %s", got[1].Status)
	}
}

func TestDeployRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy device", &HTTPError{Status: 400, Body: "device is busy"}, true},
		{"precondition failed", &HTTPError{Status: 412, Body: "precondition failed"}, true},
		{"generic bad request", &HTTPError{Status: 400, Body: "deploy rejected"}, true},
		{"invalid argument", &HTTPError{Status: 400, Body: "INVALID_ARGUMENT: fileId"}, false},
		{"disabled user", &HTTPError{Status: 400, Body: "user svc1 is disabled"}, false},
		{"not found", &HTTPError{Status: 404, Body: "no such file"}, false},
		{"network error", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeployRetryable(tt.err); got != tt.want {
				t.Errorf("DeployRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
