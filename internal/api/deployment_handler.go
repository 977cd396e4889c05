package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/coordinator"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/engine"
	"github.com/shaiso/Deployer/internal/repo"
)

// maxConfigSize — предельный размер конфигурации деплоя в теле запроса.
const maxConfigSize = 1 << 20

// ActorHeader — заголовок с именем инициатора действия.
const ActorHeader = "X-Deployer-Actor"

const defaultActor = "api"

// CreateDeployment запускает деплой.
// POST /api/v1/deployments, тело — конфигурация деплоя (YAML или JSON).
//
// Отвечает 202 сразу после создания записи, выполнение идёт в фоне.
func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}

	handle, err := h.deployer.Submit(r.Context(), coordinator.Request{
		Config: *cfg,
		Actor:  actor(r),
	})
	if err != nil {
		if errors.Is(err, coordinator.ErrCoordinatorStopped) {
			Unavailable(w, "deployer is shutting down")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	d, err := h.store.GetDeployment(r.Context(), handle.ID)
	if HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}

	w.Header().Set("Location", "/api/v1/deployments/"+d.ID.String())
	Accepted(w, DeploymentFromDomain(d, false))
}

// ListDeployments возвращает список деплоев, новые первыми.
// GET /api/v1/deployments?environment=...&status=...&limit=...&offset=...
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.DeploymentFilter{
		Limit: repo.DefaultLimit,
	}

	if env := q.Get("environment"); env != "" {
		filter.Environment = domain.Environment(env)
		if !filter.Environment.IsValid() {
			BadRequest(w, "invalid environment")
			return
		}
	}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.DeploymentStatus(status)
		if !filter.Status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", repo.DefaultLimit); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset", 0); !ok {
		return
	}

	deployments, err := h.store.ListDeployments(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeploymentResponse, len(deployments))
	for i := range deployments {
		result[i] = DeploymentFromDomain(&deployments[i], false)
	}

	List(w, result, len(result))
}

// GetDeployment возвращает деплой с конфигурацией.
// GET /api/v1/deployments/{id}
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := deploymentID(w, r)
	if !ok {
		return
	}

	d, err := h.store.GetDeployment(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}

	Success(w, DeploymentFromDomain(d, true))
}

// ListDeploymentSteps возвращает шаги деплоя в порядке плана.
// GET /api/v1/deployments/{id}/steps
func (h *Handler) ListDeploymentSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := deploymentID(w, r)
	if !ok {
		return
	}

	// Проверяем, что деплой существует
	if _, err := h.store.GetDeployment(r.Context(), id); HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}

	steps, err := h.store.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]StepResponse, len(steps))
	for i := range steps {
		result[i] = StepFromDomain(&steps[i])
	}

	List(w, result, len(result))
}

// ListDeploymentAudit возвращает журнал аудита деплоя.
// GET /api/v1/deployments/{id}/audit
func (h *Handler) ListDeploymentAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := deploymentID(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetDeployment(r.Context(), id); HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}

	entries, err := h.store.ListAudit(r.Context(), domain.AuditResourceDeployment, id.String())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AuditResponse, len(entries))
	for i := range entries {
		result[i] = AuditFromDomain(&entries[i])
	}

	List(w, result, len(result))
}

// CancelDeployment запрашивает отмену деплоя.
// POST /api/v1/deployments/{id}/cancel
//
// Запущенные шаги доводятся до конца, поэтому ответ 202, а не
// финальный статус.
func (h *Handler) CancelDeployment(w http.ResponseWriter, r *http.Request) {
	id, ok := deploymentID(w, r)
	if !ok {
		return
	}

	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body")
			return
		}
	}
	who := req.Actor
	if who == "" {
		who = actor(r)
	}

	d, err := h.store.GetDeployment(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}
	if d.IsFinished() {
		InvalidState(w, "deployment is already finished")
		return
	}

	if err := h.deployer.Cancel(r.Context(), id, who); err != nil {
		if errors.Is(err, coordinator.ErrDeploymentNotActive) {
			InvalidState(w, "deployment is not running on this instance")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, DeploymentFromDomain(d, false))
}

// CreatePlan строит план без запуска.
// POST /api/v1/plans, тело — конфигурация деплоя.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}

	steps, err := engine.BuildPlan(cfg)
	if err != nil {
		InvalidConfig(w, err)
		return
	}
	g, err := engine.BuildGraph(steps)
	if err != nil {
		InvalidConfig(w, err)
		return
	}

	resp := PlanResponse{
		Environment:    string(cfg.Environment),
		Version:        cfg.Version,
		MaxConcurrency: cfg.Parallelization.EffectiveConcurrency(),
		Steps:          make([]StepResponse, len(steps)),
		Order:          make([]string, len(g.Order)),
	}
	for i, s := range steps {
		resp.Steps[i] = StepFromDomain(s)
	}
	for i, n := range g.Order {
		resp.Order[i] = n.ID
	}

	Success(w, resp)
}

// readConfig читает и валидирует конфигурацию деплоя из тела запроса.
func (h *Handler) readConfig(w http.ResponseWriter, r *http.Request) (*domain.DeploymentConfig, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "config is too large")
			return nil, false
		}
		BadRequest(w, "invalid request body")
		return nil, false
	}

	cfg, err := engine.ParseConfig(body)
	if err != nil {
		InvalidConfig(w, err)
		return nil, false
	}
	return cfg, true
}

func deploymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid deployment id")
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) string {
	if a := r.Header.Get(ActorHeader); a != "" {
		return a
	}
	return defaultActor
}

// intParam разбирает неотрицательный query параметр.
func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		BadRequest(w, "invalid "+name)
		return 0, false
	}
	return n, true
}
