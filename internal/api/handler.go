package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/pipeline"
	"github.com/opensource-finance/shrike/internal/workflow"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	machine  *workflow.Machine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, p *pipeline.Pipeline, machine *workflow.Machine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		pipeline: p,
		machine:  machine,
		version:  version,
	}
}

// CreateComplaint handles POST /complaints. It runs one manually entered
// complaint through the matching pipeline and returns the match result.
// A no-match run is a 200 with isMatch=false.
func (h *Handler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var mc domain.ManualComplaint
	if err := json.NewDecoder(r.Body).Decode(&mc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if mc.CreatedBy == "" {
		mc.CreatedBy = GetActor(ctx)
	}

	result, err := h.pipeline.ProcessManual(ctx, mc)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// IngestAccepted is the response for an async ingest submission.
type IngestAccepted struct {
	AckNo    string `json:"ackNo"`
	Accepted bool   `json:"accepted"`
}

// Ingest handles POST /ingest. The envelope is processed synchronously by
// default; with ?mode=async it is published to the event bus for the
// ingest worker and a 202 is returned.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var env domain.IngestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if env.ReceivedBy == "" {
		env.ReceivedBy = GetActor(ctx)
	}

	if r.URL.Query().Get("mode") == "async" {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}
		payload, err := json.Marshal(env)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.bus.Publish(ctx, domain.TopicIngestEnvelope, payload); err != nil {
			slog.Error("failed to publish ingest envelope", "ack_no", env.AckNo, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, IngestAccepted{AckNo: env.AckNo, Accepted: true})
		return
	}

	result, err := h.pipeline.ProcessIngest(ctx, env)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ScreenAccountsRequest is the request body for POST /screening/accounts.
type ScreenAccountsRequest struct {
	Accounts []domain.NewAccountEntry `json:"accounts"`
}

// ScreenNewAccounts runs newly opened accounts through NAA screening.
func (h *Handler) ScreenNewAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScreenAccountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.pipeline.ScreenNewAccounts(ctx, req.Accounts, GetActor(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ScreenMobilesRequest is the request body for POST /screening/mobiles.
type ScreenMobilesRequest struct {
	Mobiles []string `json:"mobiles"`
}

// ScreenMobiles runs a telecom reverification flag list through mobile
// matching.
func (h *Handler) ScreenMobiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScreenMobilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.pipeline.ScreenMobiles(ctx, req.Mobiles, GetActor(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CaseResponse is the response for GET /cases/{id}.
type CaseResponse struct {
	Case   *domain.Case       `json:"case"`
	Detail *domain.CaseDetail `json:"detail,omitempty"`
}

// GetCase retrieves a case by ID, with its match detail when one exists.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.repo.GetCaseDetail(ctx, caseID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Error("failed to get case detail", "case_id", caseID, "error", err)
	}

	writeJSON(w, http.StatusOK, CaseResponse{Case: c, Detail: detail})
}

// ListCases returns a filtered page of cases. Visibility is role-scoped:
// departmental users and supervisors see only their own active queue,
// risk officers and CROs see everything and may narrow with
// ?assignedTo=<user>.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filters, err := parseCaseFilters(q)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.repo.GetUser(ctx, GetActor(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	var page *domain.CasePage
	switch user.Role {
	case domain.RoleOthers, domain.RoleSupervisor:
		page, err = h.repo.ListCasesAssignedTo(ctx, user.Username, filters)
	default:
		if assignee := q.Get("assignedTo"); assignee != "" {
			page, err = h.repo.ListCasesAssignedTo(ctx, assignee, filters)
		} else {
			page, err = h.repo.ListCases(ctx, filters)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func parseCaseFilters(q map[string][]string) (domain.CaseFilters, error) {
	get := func(key string) string {
		if vs := q[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	var f domain.CaseFilters
	fields := map[string]string{}

	if raw := get("type"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			ct, err := domain.ParseCaseType(part)
			if err != nil {
				fields["type"] = "unknown case type: " + part
				break
			}
			f.Types = append(f.Types, ct)
		}
	}
	if raw := get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, domain.CaseStatus(strings.TrimSpace(part)))
		}
	}
	f.AccountNumber = get("accountNumber")
	if raw := get("operational"); raw != "" {
		op, err := strconv.ParseBool(raw)
		if err != nil {
			fields["operational"] = "must be true or false"
		} else {
			f.Operational = &op
		}
	}
	if raw := get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields["from"] = "must be RFC3339"
		} else {
			f.From = &t
		}
	}
	if raw := get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields["to"] = "must be RFC3339"
		} else {
			f.To = &t
		}
	}
	if raw := get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["limit"] = "must be a non-negative integer"
		} else {
			f.Limit = n
		}
	}
	if raw := get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative integer"
		} else {
			f.Offset = n
		}
	}

	if len(fields) > 0 {
		return f, domain.NewValidationError(fields)
	}
	return f, nil
}

// GetHistory returns the full append-only history of a case.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	// 404 for unknown cases rather than an empty list.
	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.repo.ListHistory(ctx, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  caseID,
		"history": entries,
		"count":   len(entries),
	})
}

// GetLatestDecision returns the newest history entry of a case.
func (h *Handler) GetLatestDecision(w http.ResponseWriter, r *http.Request) {
	entry, err := h.machine.LatestDecision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DecisionRequest is the request body for POST /cases/{id}/decision.
type DecisionRequest struct {
	Remarks string `json:"remarks"`
}

// SaveDecision appends a decision entry to the case history.
func (h *Handler) SaveDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Remarks == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "remarks is required",
		})
		return
	}

	if err := h.machine.SaveDecision(ctx, caseID, req.Remarks, GetActor(ctx)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"caseId": caseID,
		"status": "saved",
	})
}

// ListAssignments returns the full assignment history of a case.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	assignments, err := h.repo.ListAssignments(ctx, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":      caseID,
		"assignments": assignments,
		"count":       len(assignments),
	})
}

// GetAudit returns the audit trail of a case.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.repo.ListAudit(ctx, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId": caseID,
		"audit":  entries,
		"count":  len(entries),
	})
}

// AssignRequest is the request body for POST /cases/{id}/assign. Template
// marks hand-offs produced by a response template rather than a direct pick.
type AssignRequest struct {
	AssignedTo string `json:"assignedTo"`
	Comment    string `json:"comment,omitempty"`
	Template   bool   `json:"template,omitempty"`
}

// Assign reassigns a case to another user, subject to role transition rules.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.AssignedTo == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assignedTo is required",
		})
		return
	}

	assignType := domain.AssignManual
	if req.Template {
		assignType = domain.AssignTemplate
	}
	if err := h.machine.Assign(ctx, caseID, req.AssignedTo, GetActor(ctx), req.Comment, assignType); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId":     caseID,
		"assignedTo": req.AssignedTo,
	})
}

// CommentRequest is the request body shared by send-back and approve.
type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}

// SendBack routes a case from a departmental user back to their supervisor,
// re-submitting any rejected pending edits for review.
func (h *Handler) SendBack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.machine.SendBack(ctx, caseID, GetActor(ctx), req.Comment); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId": caseID,
		"status": "sent_back",
	})
}

// ApproveDepartment approves a department's pending edits and routes the
// case back to the originating risk officer.
func (h *Handler) ApproveDepartment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.machine.ApproveDepartment(ctx, caseID, GetActor(ctx), req.Comment); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId": caseID,
		"status": "approved",
	})
}

// RejectRequest is the request body for POST /cases/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectDepartment rejects a department's pending edits and routes the
// case back to the department user for revision.
func (h *Handler) RejectDepartment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reason is required",
		})
		return
	}

	if err := h.machine.RejectDepartment(ctx, caseID, GetActor(ctx), req.Reason); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId": caseID,
		"status": "rejected",
	})
}

// ReopenRequest is the request body for POST /cases/{id}/reopen.
type ReopenRequest struct {
	Remarks string `json:"remarks,omitempty"`
}

// Reopen reopens a closed case.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req ReopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.machine.Reopen(ctx, caseID, GetActor(ctx), req.Remarks); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"caseId": caseID,
		"status": string(domain.StatusOpen),
	})
}

// BulkCloseRequest is the request body for POST /cases/bulk-close.
type BulkCloseRequest struct {
	CaseIDs       []string `json:"caseIds"`
	Remarks       string   `json:"remarks"`
	ConfirmedMule string   `json:"confirmedMule,omitempty"`
}

// BulkClose closes a set of cases with shared closure remarks. Failures
// are per-case; successful closures are not rolled back.
func (h *Handler) BulkClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.CaseIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "caseIds is required",
		})
		return
	}

	outcome := h.machine.BulkClose(ctx, req.CaseIDs, domain.BulkClosePayload{
		Remarks:       req.Remarks,
		ConfirmedMule: req.ConfirmedMule,
		ClosedBy:      GetActor(ctx),
	})

	writeJSON(w, http.StatusOK, outcome)
}

// BulkAssignRequest is the request body for POST /cases/bulk-assign.
type BulkAssignRequest struct {
	Items []domain.BulkAssignItem `json:"items"`
}

// BulkAssign assigns a set of cases, each subject to the same transition
// rules as a single assign.
func (h *Handler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "items is required",
		})
		return
	}

	outcome := h.machine.BulkAssign(ctx, req.Items, GetActor(ctx))
	writeJSON(w, http.StatusOK, outcome)
}

// actorScope resolves the acting user's department for pending-edit
// visibility and review state. Departmental users write pending rows
// scoped to their department; base users write always-visible rows.
func (h *Handler) actorScope(r *http.Request) (*domain.UserAccount, *string, error) {
	actor := GetActor(r.Context())
	user, err := h.repo.GetUser(r.Context(), actor)
	if err != nil {
		return nil, nil, err
	}
	if user.Role == domain.RoleOthers || user.Role == domain.RoleSupervisor {
		return user, user.Department, nil
	}
	return user, nil, nil
}

// ActionDetailRequest is the request body for POST /cases/{id}/actions.
type ActionDetailRequest struct {
	Action  string `json:"action"`
	Details string `json:"details,omitempty"`
}

// SaveActionDetail records an action on a case. Rows written by
// departmental users start in pending_approval and stay invisible to
// other departments until approved.
func (h *Handler) SaveActionDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req ActionDetailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action is required",
		})
		return
	}

	user, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	detail := &domain.ActionDetail{
		ID:         uuid.New().String(),
		CaseID:     caseID,
		Department: dept,
		State:      reviewStateFor(dept),
		Action:     req.Action,
		Details:    req.Details,
		CreatedBy:  user.Username,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.repo.SaveActionDetail(ctx, detail); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, detail)
}

// ListActionDetails lists action details visible to the acting user.
func (h *Handler) ListActionDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	_, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := h.repo.ListActionDetails(ctx, caseID, dept)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  caseID,
		"actions": details,
		"count":   len(details),
	})
}

// DocumentRequest is the request body for POST /cases/{id}/documents.
type DocumentRequest struct {
	FileName string `json:"fileName"`
	FileRef  string `json:"fileRef"`
}

// SaveDocument attaches an evidence document reference to a case.
func (h *Handler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.FileName == "" || req.FileRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fileName and fileRef are required",
		})
		return
	}

	user, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	doc := &domain.CaseDocument{
		ID:         uuid.New().String(),
		CaseID:     caseID,
		Department: dept,
		State:      reviewStateFor(dept),
		FileName:   req.FileName,
		FileRef:    req.FileRef,
		UploadedBy: user.Username,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.repo.SaveCaseDocument(ctx, doc); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments lists case documents visible to the acting user.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	_, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	docs, err := h.repo.ListCaseDocuments(ctx, caseID, dept)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":    caseID,
		"documents": docs,
		"count":     len(docs),
	})
}

// TemplateRequest is the request body for POST /cases/{id}/templates.
type TemplateRequest struct {
	TemplateID string `json:"templateId"`
	Response   string `json:"response"`
}

// SaveTemplateResponse records a filled response template on a case.
func (h *Handler) SaveTemplateResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "templateId is required",
		})
		return
	}

	user, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.repo.GetCase(ctx, caseID); err != nil {
		writeError(w, err)
		return
	}

	tr := &domain.TemplateResponse{
		ID:         uuid.New().String(),
		CaseID:     caseID,
		Department: dept,
		State:      reviewStateFor(dept),
		TemplateID: req.TemplateID,
		Response:   req.Response,
		CreatedBy:  user.Username,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.repo.SaveTemplateResponse(ctx, tr); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tr)
}

// ListTemplateResponses lists template responses visible to the acting user.
func (h *Handler) ListTemplateResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "id")

	_, dept, err := h.actorScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	responses, err := h.repo.ListTemplateResponses(ctx, caseID, dept)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":    caseID,
		"templates": responses,
		"count":     len(responses),
	})
}

// reviewStateFor picks the initial review state of a pending edit.
// Department-scoped rows await supervisor approval; base rows do not.
func reviewStateFor(dept *string) domain.ReviewState {
	if dept != nil {
		return domain.ReviewPending
	}
	return domain.ReviewApproved
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Fields: ve.Fields})
		return
	}

	var te *domain.TransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: te.Error()})
		return
	}

	switch {
	case domain.IsDuplicate(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
