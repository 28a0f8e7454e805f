package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"botfleet/internal/core/domain"
)

// Hand-rolled fakes for the ports the services consume.

type mockPlatform struct {
	robots  []domain.PlatformRobot
	devices []domain.PlatformDevice
	users   []domain.PlatformUser

	robotsErr  error
	devicesErr error
	usersErr   error

	deployFn    func(botID int64, userIDs []int64) (string, error)
	deployCalls int

	statuses  []domain.DeploymentStatus
	statusErr error
	statusIDs [][]string
}

func (m *mockPlatform) FetchRobots(ctx context.Context) ([]domain.PlatformRobot, error) {
	return m.robots, m.robotsErr
}

func (m *mockPlatform) FetchDevices(ctx context.Context) ([]domain.PlatformDevice, error) {
	return m.devices, m.devicesErr
}

func (m *mockPlatform) FetchUsers(ctx context.Context) ([]domain.PlatformUser, error) {
	return m.users, m.usersErr
}

func (m *mockPlatform) Deploy(ctx context.Context, botID int64, runAsUserIDs []int64, input map[string]any) (string, error) {
	m.deployCalls++
	if m.deployFn != nil {
		return m.deployFn(botID, runAsUserIDs)
	}
	return "dep-1", nil
}

func (m *mockPlatform) FetchStatusByDeploymentIDs(ctx context.Context, ids []string) ([]domain.DeploymentStatus, error) {
	m.statusIDs = append(m.statusIDs, ids)
	return m.statuses, m.statusErr
}

func (m *mockPlatform) Close() error { return nil }

type mergeCall struct {
	kind  string
	count int
}

type mockGateway struct {
	mu sync.Mutex

	mergeCalls    []mergeCall
	mergedDevices []domain.Device
	mergeErr      error

	candidates    []domain.LaunchCandidate
	candidatesErr error

	executions []domain.Execution
	insertErr  error

	inflight []domain.Execution

	appliedStatuses []domain.DeploymentStatus
	incremented     []string
	escalated       int64

	robotNames map[int64]string
	devices    map[int64]*domain.Device
}

func (m *mockGateway) Ping(ctx context.Context) error { return nil }
func (m *mockGateway) Close() error                   { return nil }

func (m *mockGateway) MergeRobots(ctx context.Context, robots []domain.PlatformRobot) (int, error) {
	if m.mergeErr != nil {
		return 0, m.mergeErr
	}
	m.mu.Lock()
	m.mergeCalls = append(m.mergeCalls, mergeCall{kind: "robots", count: len(robots)})
	m.mu.Unlock()
	return len(robots), nil
}

func (m *mockGateway) MergeDevices(ctx context.Context, devices []domain.Device) (int, error) {
	if m.mergeErr != nil {
		return 0, m.mergeErr
	}
	m.mu.Lock()
	m.mergeCalls = append(m.mergeCalls, mergeCall{kind: "devices", count: len(devices)})
	m.mergedDevices = devices
	m.mu.Unlock()
	return len(devices), nil
}

func (m *mockGateway) EligibleRobots(ctx context.Context) ([]domain.LaunchCandidate, error) {
	return m.candidates, m.candidatesErr
}

func (m *mockGateway) InsertExecution(ctx context.Context, exec *domain.Execution) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	m.executions = append(m.executions, *exec)
	m.mu.Unlock()
	return nil
}

func (m *mockGateway) InFlightExecutions(ctx context.Context, minAge time.Duration) ([]domain.Execution, error) {
	return m.inflight, nil
}

func (m *mockGateway) ApplyDeploymentStatuses(ctx context.Context, statuses []domain.DeploymentStatus) (int64, error) {
	m.appliedStatuses = append(m.appliedStatuses, statuses...)
	return int64(len(statuses)), nil
}

func (m *mockGateway) IncrementFailedAttempts(ctx context.Context, ids []string) (int64, error) {
	m.incremented = append(m.incremented, ids...)
	return int64(len(ids)), nil
}

func (m *mockGateway) EscalateToUnknown(ctx context.Context, maxFailedAttempts int) (int64, error) {
	return m.escalated, nil
}

func (m *mockGateway) UpdateExecutionFromExternalStatus(ctx context.Context, deploymentID string, status domain.ExecutionStatus, rawPayload string) (domain.UpdateOutcome, error) {
	return domain.UpdateOutcomeUpdated, nil
}

func (m *mockGateway) RobotName(ctx context.Context, robotID int64) (string, error) {
	if name, ok := m.robotNames[robotID]; ok {
		return name, nil
	}
	return "", errors.New("not found")
}

func (m *mockGateway) DeviceInfo(ctx context.Context, deviceID int64) (*domain.Device, error) {
	if d, ok := m.devices[deviceID]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

type mockOrphans struct {
	mu      sync.Mutex
	orphans map[string]domain.OrphanDeployment
	listErr error
}

func newMockOrphans() *mockOrphans {
	return &mockOrphans{orphans: make(map[string]domain.OrphanDeployment)}
}

func (m *mockOrphans) Add(ctx context.Context, orphan domain.OrphanDeployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphans[orphan.DeploymentID] = orphan
	return nil
}

func (m *mockOrphans) List(ctx context.Context) ([]domain.OrphanDeployment, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrphanDeployment, 0, len(m.orphans))
	for _, o := range m.orphans {
		out = append(out, o)
	}
	return out, nil
}

func (m *mockOrphans) Remove(ctx context.Context, deploymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orphans, deploymentID)
	return nil
}

func (m *mockOrphans) IncrementAttempts(ctx context.Context, deploymentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orphans[deploymentID]
	if !ok {
		return 0, errors.New("orphan not found")
	}
	o.Attempts++
	m.orphans[deploymentID] = o
	return o.Attempts, nil
}

type sentAlert struct {
	subject  string
	body     string
	critical bool
}

type mockNotifier struct {
	mu     sync.Mutex
	alerts []sentAlert
}

func (m *mockNotifier) SendAlert(subject, body string, critical bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, sentAlert{subject, body, critical})
	return true
}
