// Package platform is the HTTP adapter for the remote robot-execution
// platform's REST API: token-based auth, paginated inventory listing, bot
// deployment and activity status lookup.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"botfleet/internal/core/circuitbreaker"
	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/ports"
)

const (
	endpointAuth       = "/v2/authentication"
	endpointFilesList  = "/v2/repository/workspaces/public/files/list"
	endpointDeviceList = "/v2/devices/list"
	endpointUsersList  = "/v2/usermanagement/users/list"
	endpointDeploy     = "/v3/automations/deploy"
	endpointActivity   = "/v3/activity/list"

	taskbotMIME = "application/vnd.aa.taskbot"
)

// Config carries the connection settings, lifted from the environment by the
// caller.
type Config struct {
	BaseURL        string
	Username       string
	Password       string
	APIKey         string
	CallbackURL    string
	CallbackSecret string
	Timeout        time.Duration
	TokenRefresh   time.Duration
	PageSize       int
	MaxPages       int
}

// Client implements ports.PlatformClient. One token is shared across all
// calls and refreshed under a lock before it expires; every request goes
// through a circuit breaker so a hard-down platform fails fast instead of
// eating a full timeout per call.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	log     *slog.Logger

	mu        sync.Mutex
	token     string
	tokenTime time.Time
}

var _ ports.PlatformClient = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New("platform-api"),
		log:     logger.With("component", "platform"),
	}
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// HTTPError is a non-2xx response. The deploy path inspects it to decide
// whether a rejection is worth retrying.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("platform API status %d: %s", e.Status, e.Body)
}

// ensureToken refreshes the auth token when it is missing or older than the
// refresh buffer. Serialized so concurrent sub-tasks never race a refresh.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Since(c.tokenTime) < c.cfg.TokenRefresh {
		return c.token, nil
	}

	payload := map[string]any{
		"username":   c.cfg.Username,
		"password":   c.cfg.Password,
		"multiLogin": true,
	}
	if c.cfg.APIKey != "" {
		payload["apiKey"] = c.cfg.APIKey
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, endpointAuth, "", payload, &resp); err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("authenticate: no token in response")
	}

	c.token = resp.Token
	c.tokenTime = time.Now()
	c.log.Info("refreshed platform token", "user", c.cfg.Username)
	return c.token, nil
}

// post sends one JSON request and decodes the JSON response. Non-2xx becomes
// *HTTPError with the response body preserved for classification.
func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// call runs one authenticated request under the circuit breaker.
func (c *Client) call(ctx context.Context, path string, payload, out any) error {
	return c.breaker.Execute(func() error {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}
		err = c.post(ctx, path, token, payload, out)
		if httpErr, ok := err.(*HTTPError); ok && httpErr.Status == http.StatusUnauthorized {
			// Token revoked server-side before the refresh buffer elapsed.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return err
	})
}

type pagedResponse struct {
	Page struct {
		Offset      int `json:"offset"`
		Total       int `json:"total"`
		TotalFilter int `json:"totalFilter"`
	} `json:"page"`
	List []json.RawMessage `json:"list"`
}

// listPaged walks a list endpoint page by page until totalFilter entries are
// collected, an empty page comes back, or the page cap trips.
func (c *Client) listPaged(ctx context.Context, path string, base map[string]any) ([]json.RawMessage, error) {
	var all []json.RawMessage
	expected := -1

	for page := 0; page < c.cfg.MaxPages; page++ {
		payload := make(map[string]any, len(base)+1)
		for k, v := range base {
			payload[k] = v
		}
		payload["page"] = map[string]any{
			"offset": page * c.cfg.PageSize,
			"length": c.cfg.PageSize,
		}

		var resp pagedResponse
		if err := c.call(ctx, path, payload, &resp); err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", page, path, err)
		}

		if expected < 0 {
			if resp.Page.TotalFilter > 0 {
				expected = resp.Page.TotalFilter
			} else if resp.Page.Total > 0 {
				expected = resp.Page.Total
			}
		}

		if len(resp.List) == 0 {
			break
		}
		all = append(all, resp.List...)

		if expected >= 0 && len(all) >= expected {
			break
		}
		if len(resp.List) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

func eqFilter(field string, value any) map[string]any {
	return map[string]any{"operator": "eq", "field": field, "value": value}
}

// FetchRobots lists the deployable taskbots in the public workspace.
func (c *Client) FetchRobots(ctx context.Context) ([]domain.PlatformRobot, error) {
	base := map[string]any{
		"sort":   []map[string]any{{"field": "name", "direction": "asc"}},
		"filter": eqFilter("type", taskbotMIME),
	}
	items, err := c.listPaged(ctx, endpointFilesList, base)
	if err != nil {
		return nil, err
	}

	robots := make([]domain.PlatformRobot, 0, len(items))
	for _, item := range items {
		var wire struct {
			ID          json.Number `json:"id"`
			Name        string      `json:"name"`
			Description string      `json:"description"`
			Path        string      `json:"path"`
		}
		if err := json.Unmarshal(item, &wire); err != nil {
			return nil, fmt.Errorf("decode robot: %w", err)
		}
		id, _ := wire.ID.Int64()
		robots = append(robots, domain.PlatformRobot{
			ID:          id,
			Name:        wire.Name,
			Description: wire.Description,
			Path:        wire.Path,
		})
	}
	return robots, nil
}

// FetchDevices lists the connected devices with their default users.
func (c *Client) FetchDevices(ctx context.Context) ([]domain.PlatformDevice, error) {
	base := map[string]any{
		"sort":   []map[string]any{{"field": "hostName", "direction": "asc"}},
		"filter": eqFilter("status", "CONNECTED"),
	}
	items, err := c.listPaged(ctx, endpointDeviceList, base)
	if err != nil {
		return nil, err
	}

	devices := make([]domain.PlatformDevice, 0, len(items))
	for _, item := range items {
		var wire struct {
			ID           json.Number `json:"id"`
			Hostname     string      `json:"hostName"`
			Status       string      `json:"status"`
			DefaultUsers []struct {
				ID       json.Number `json:"id"`
				Username string      `json:"username"`
			} `json:"defaultUsers"`
		}
		if err := json.Unmarshal(item, &wire); err != nil {
			return nil, fmt.Errorf("decode device: %w", err)
		}
		id, _ := wire.ID.Int64()
		dev := domain.PlatformDevice{ID: id, Hostname: wire.Hostname, Status: wire.Status}
		for _, u := range wire.DefaultUsers {
			uid, _ := u.ID.Int64()
			dev.DefaultUsers = append(dev.DefaultUsers, domain.PlatformUserRef{ID: uid, Username: u.Username})
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// FetchUsers lists all platform users with their license features.
func (c *Client) FetchUsers(ctx context.Context) ([]domain.PlatformUser, error) {
	base := map[string]any{
		"sort": []map[string]any{{"field": "username", "direction": "asc"}},
	}
	items, err := c.listPaged(ctx, endpointUsersList, base)
	if err != nil {
		return nil, err
	}

	users := make([]domain.PlatformUser, 0, len(items))
	for _, item := range items {
		var wire struct {
			ID              json.Number `json:"id"`
			Username        string      `json:"username"`
			Description     string      `json:"description"`
			Email           string      `json:"email"`
			LicenseFeatures []string    `json:"licenseFeatures"`
			Disabled        bool        `json:"disabled"`
		}
		if err := json.Unmarshal(item, &wire); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		id, _ := wire.ID.Int64()
		users = append(users, domain.PlatformUser{
			ID:              id,
			Username:        wire.Username,
			Description:     wire.Description,
			Email:           wire.Email,
			LicenseFeatures: wire.LicenseFeatures,
			Disabled:        wire.Disabled,
		})
	}
	return users, nil
}

// Deploy launches a bot on the given run-as users. On acceptance the
// platform-issued deployment id comes back; the callback URL and its shared
// secret ride along so the platform can report completion.
func (c *Client) Deploy(ctx context.Context, botID int64, runAsUserIDs []int64, input map[string]any) (string, error) {
	payload := map[string]any{
		"fileId":       botID,
		"runAsUserIds": runAsUserIDs,
	}
	if c.cfg.CallbackURL != "" {
		cb := map[string]any{"url": c.cfg.CallbackURL}
		if c.cfg.CallbackSecret != "" {
			cb["headers"] = map[string]string{"X-Authorization": c.cfg.CallbackSecret}
		}
		payload["callbackInfo"] = cb
	}
	if len(input) > 0 {
		payload["botInput"] = input
	}

	var resp struct {
		DeploymentID string `json:"deploymentId"`
	}
	if err := c.call(ctx, endpointDeploy, payload, &resp); err != nil {
		return "", err
	}
	if resp.DeploymentID == "" {
		return "", fmt.Errorf("deploy accepted without deployment id")
	}
	return resp.DeploymentID, nil
}

// FetchStatusByDeploymentIDs returns the platform's current view of the given
// deployments in one batched activity query. Unrecognized statuses are
// dropped; absence from the result means the platform no longer knows the id.
func (c *Client) FetchStatusByDeploymentIDs(ctx context.Context, ids []string) ([]domain.DeploymentStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	operands := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		operands = append(operands, eqFilter("deploymentId", id))
	}
	payload := map[string]any{
		"sort":   []map[string]any{{"field": "startDateTime", "direction": "desc"}},
		"filter": map[string]any{"operator": "or", "operands": operands},
	}

	var resp struct {
		List []struct {
			DeploymentID string `json:"deploymentId"`
			Status       string `json:"status"`
			EndDateTime  string `json:"endDateTime"`
		} `json:"list"`
	}
	if err := c.call(ctx, endpointActivity, payload, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.DeploymentStatus, 0, len(resp.List))
	for _, item := range resp.List {
		status, ok := MapActivityStatus(item.Status)
		if !ok {
			c.log.Warn("unrecognized activity status", "deployment_id", item.DeploymentID, "status", item.Status)
			continue
		}
		ds := domain.DeploymentStatus{DeploymentID: item.DeploymentID, Status: status}
		if item.EndDateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.EndDateTime); err == nil {
				ds.EndTime = &t
			}
		}
		out = append(out, ds)
	}
	return out, nil
}

// MapActivityStatus translates a platform activity status into the local
// lifecycle. Every in-progress flavor collapses onto LAUNCHED.
func MapActivityStatus(s string) (domain.ExecutionStatus, bool) {
	switch s {
	case "DEPLOYED", "QUEUED", "PENDING_EXECUTION", "UPDATE", "RUNNING", "RUN_PAUSED":
		return domain.ExecutionStatusLaunched, true
	case "COMPLETED", "RUN_COMPLETED":
		return domain.ExecutionStatusRunCompleted, true
	case "RUN_FAILED":
		return domain.ExecutionStatusRunFailed, true
	case "RUN_ABORTED":
		return domain.ExecutionStatusRunAborted, true
	case "RUN_TIMED_OUT":
		return domain.ExecutionStatusRunTimedOut, true
	case "DEPLOY_FAILED":
		return domain.ExecutionStatusDeployFailed, true
	case "UNKNOWN":
		return domain.ExecutionStatusUnknown, true
	}
	return "", false
}
