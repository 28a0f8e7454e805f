package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/ports"
	"botfleet/internal/core/services"
)

// Repositories groups the administrative persistence surfaces the dashboard
// API serves from.
type Repositories struct {
	Robots      ports.RobotRepository
	Assignments ports.AssignmentRepository
	Schedules   ports.ScheduleRepository
	Executions  ports.ExecutionRepository
}

type Server struct {
	router    *chi.Mux
	gateway   ports.Gateway
	repos     Repositories
	healthSvc *services.HealthService
	callback  *CallbackHandler
}

func NewServer(gateway ports.Gateway, repos Repositories, healthSvc *services.HealthService, callbackSecret string) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		gateway:   gateway,
		repos:     repos,
		healthSvc: healthSvc,
		callback:  NewCallbackHandler(gateway, callbackSecret),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint
	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/health/detailed", s.handleDetailedHealth)

	// Completion reports from the platform
	s.router.Post("/api/callback", s.callback.ServeHTTP)

	s.router.Route("/api/robots", func(r chi.Router) {
		r.Get("/", s.handleListRobots)
		r.Get("/{id}", s.handleGetRobot)
		r.Patch("/{id}", s.handleUpdateRobot)
		r.Get("/{id}/assignments", s.handleListAssignments)
		r.Put("/{id}/assignments", s.handleReplaceAssignments)
		r.Get("/{id}/schedules", s.handleListSchedules)
		r.Post("/{id}/schedules", s.handleCreateSchedule)
		r.Put("/{id}/schedules/{scheduleID}", s.handleUpdateSchedule)
		r.Delete("/{id}/schedules/{scheduleID}", s.handleDeleteSchedule)
	})

	s.router.Get("/api/executions", s.handleListExecutions)
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	// Liveness probe - just check if server is running
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, report)
}

type robotListResponse struct {
	Robots []domain.Robot `json:"robots"`
	Total  int64          `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

func (s *Server) handleListRobots(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	filter := r.URL.Query().Get("q")

	robots, total, err := s.repos.Robots.ListRobots(r.Context(), filter, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list robots", err)
		return
	}
	writeJSON(w, http.StatusOK, robotListResponse{Robots: robots, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) handleGetRobot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	robot, err := s.repos.Robots.GetRobot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "robot not found", err)
		return
	}
	writeJSON(w, http.StatusOK, robot)
}

type updateRobotRequest struct {
	Online           *bool `json:"is_online"`
	Active           *bool `json:"active"`
	BalancePriority  *int  `json:"balance_priority"`
	TicketsPerDevice *int  `json:"tickets_per_device"`
}

func (s *Server) handleUpdateRobot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	err := s.repos.Robots.UpdateRobotOperational(r.Context(), id, req.Online, req.Active, req.BalancePriority, req.TicketsPerDevice)
	if err != nil {
		writeError(w, http.StatusNotFound, "robot not found", err)
		return
	}

	robot, err := s.repos.Robots.GetRobot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload robot", err)
		return
	}
	writeJSON(w, http.StatusOK, robot)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := s.repos.Assignments.ListAssignmentsByRobot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

type replaceAssignmentsRequest struct {
	Assign     []int64 `json:"assign"`
	Unassign   []int64 `json:"unassign"`
	AssignedBy string  `json:"assigned_by"`
}

func (s *Server) handleReplaceAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req replaceAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if req.AssignedBy == "" {
		req.AssignedBy = "dashboard"
	}

	if err := s.repos.Assignments.ReplaceManualAssignments(r.Context(), id, req.Assign, req.Unassign, req.AssignedBy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update assignments", err)
		return
	}

	assignments, err := s.repos.Assignments.ListAssignmentsByRobot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	schedules, err := s.repos.Schedules.ListSchedulesByRobot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

type scheduleRequest struct {
	Kind             domain.ScheduleKind `json:"kind"`
	StartTime        string              `json:"start_time"`
	ToleranceMinutes int                 `json:"tolerance_minutes"`
	WeekDays         *string             `json:"week_days"`
	DayOfMonth       *int                `json:"day_of_month"`
	SpecificDate     *string             `json:"specific_date"`
	DeviceIDs        []int64             `json:"device_ids"`
}

func (req *scheduleRequest) toDomain(robotID int64) (*domain.Schedule, error) {
	sched := &domain.Schedule{
		RobotID:          robotID,
		Kind:             req.Kind,
		StartTime:        req.StartTime,
		ToleranceMinutes: req.ToleranceMinutes,
		WeekDays:         req.WeekDays,
		DayOfMonth:       req.DayOfMonth,
	}
	if !sched.Kind.Valid() {
		return nil, errInvalidScheduleKind
	}
	if req.SpecificDate != nil {
		t, err := parseDate(*req.SpecificDate)
		if err != nil {
			return nil, err
		}
		sched.SpecificDate = &t
	}
	return sched, nil
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	sched, err := req.toDomain(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule", err)
		return
	}

	if err := s.repos.Schedules.CreateSchedule(r.Context(), sched, req.DeviceIDs); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	robotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	scheduleID, ok := pathID(w, r, "scheduleID")
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	sched, err := req.toDomain(robotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule", err)
		return
	}
	sched.ScheduleID = scheduleID

	if err := s.repos.Schedules.UpdateSchedule(r.Context(), sched, req.DeviceIDs); err != nil {
		writeError(w, http.StatusNotFound, "schedule not found", err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	robotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	scheduleID, ok := pathID(w, r, "scheduleID")
	if !ok {
		return
	}

	if err := s.repos.Schedules.DeleteSchedule(r.Context(), scheduleID, robotID); err != nil {
		writeError(w, http.StatusNotFound, "schedule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executionListResponse struct {
	Executions []domain.Execution `json:"executions"`
	Total      int64              `json:"total"`
	Offset     int                `json:"offset"`
	Limit      int                `json:"limit"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	executions, total, err := s.repos.Executions.ListExecutions(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	writeJSON(w, http.StatusOK, executionListResponse{Executions: executions, Total: total, Offset: offset, Limit: limit})
}

func pagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return offset, limit
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id", err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	writeJSON(w, status, map[string]string{"error": msg, "details": err.Error()})
}
