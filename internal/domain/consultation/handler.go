package consultation

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
	"github.com/clinika/clinika/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, p *authz.Pipeline) {
	member := authz.Protect(p, authz.RouteMeta{})
	staff := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleSecretary, authz.RoleDoctor, authz.RoleAdmin, authz.RoleOwner}})

	api.GET("/consultations", h.List, member)
	api.GET("/consultations/:id", h.Get, member)
	api.GET("/doctors/:doctorId/agenda", h.Agenda, member)
	api.POST("/consultations", h.Schedule, staff)
	api.POST("/consultations/:id/status", h.Transition, staff)
}

type scheduleRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

func (h *Handler) Schedule(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	cons := &Consultation{
		OrganizationID: rc.OrganizationID,
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		ScheduledAt:    req.ScheduledAt,
		Notes:          req.Notes,
	}
	if err := h.svc.Schedule(c.Request().Context(), cons); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid consultation id")
	}
	cons, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) List(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	page := pagination.FromContext(c)

	if raw := c.QueryParam("patient_id"); raw != "" {
		patientID, err := uuid.Parse(raw)
		if err != nil {
			return apperr.BadRequest("invalid patient_id")
		}
		items, total, err := h.svc.ListByPatient(c.Request().Context(), rc.OrganizationID, patientID, page.Limit, page.Offset)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
	}

	items, total, err := h.svc.List(c.Request().Context(), rc.OrganizationID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) Agenda(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return apperr.BadRequest("invalid doctor id")
	}

	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return apperr.BadRequest("from must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return apperr.BadRequest("to must be an RFC 3339 timestamp")
	}

	items, err := h.svc.Agenda(c.Request().Context(), rc.OrganizationID, doctorID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Transition(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid consultation id")
	}

	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	cons, err := h.svc.Transition(c.Request().Context(), rc.OrganizationID, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cons)
}
