package anvisareport

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
	"github.com/clinika/clinika/pkg/pagination"
)

// DoctorResolver maps the authenticated user to their doctor profile.
type DoctorResolver interface {
	DoctorID(ctx echo.Context) (uuid.UUID, error)
}

type Handler struct {
	svc     *Service
	doctors DoctorResolver
}

func NewHandler(svc *Service, doctors DoctorResolver) *Handler {
	return &Handler{svc: svc, doctors: doctors}
}

func (h *Handler) RegisterRoutes(api *echo.Group, p *authz.Pipeline) {
	member := authz.Protect(p, authz.RouteMeta{})
	doctor := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleDoctor}})
	// Agency outcomes are recorded by back-office staff, not the doctor.
	admin := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleAdmin, authz.RoleOwner}})

	api.GET("/anvisa-reports/:id", h.Get, member)
	api.GET("/patients/:patientId/anvisa-reports", h.ListByPatient, member)
	api.GET("/anvisa-reports/:id/verify", h.Verify, member)
	api.POST("/anvisa-reports", h.Create, doctor)
	api.PATCH("/anvisa-reports/:id", h.UpdateContent, doctor)
	api.POST("/anvisa-reports/:id/ready", h.MarkReady, doctor)
	api.POST("/anvisa-reports/:id/sign", h.Sign, doctor)
	api.POST("/anvisa-reports/:id/submit", h.Submit, admin)
	api.POST("/anvisa-reports/:id/approve", h.Approve, admin)
	api.POST("/anvisa-reports/:id/reject", h.Reject, admin)
}

type createRequest struct {
	PatientID uuid.UUID      `json:"patient_id"`
	Content   map[string]any `json:"content"`
}

func (h *Handler) Create(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Create(c.Request().Context(), rc.OrganizationID, req.PatientID, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	r, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return apperr.BadRequest("invalid patient id")
	}
	page := pagination.FromContext(c)

	items, total, err := h.svc.ListByPatient(c.Request().Context(), rc.OrganizationID, patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

type updateRequest struct {
	Content map[string]any `json:"content"`
}

func (h *Handler) UpdateContent(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.UpdateContent(c.Request().Context(), rc.OrganizationID, id, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) MarkReady(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.MarkReady(c.Request().Context(), rc.OrganizationID, id, doctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Sign(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Sign(c.Request().Context(), rc.OrganizationID, id, doctorID, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

type submitRequest struct {
	ProtocolNumber string `json:"protocol_number"`
}

func (h *Handler) Submit(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	r, err := h.svc.Submit(c.Request().Context(), rc.OrganizationID, id, rc.Principal.UserID, req.ProtocolNumber, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

type decisionRequest struct {
	Response string `json:"response"`
}

func (h *Handler) Approve(c echo.Context) error {
	return h.decide(c, h.svc.Approve)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.decide(c, h.svc.Reject)
}

func (h *Handler) decide(c echo.Context, op func(ctx context.Context, organizationID, id, actorID uuid.UUID, response, callerIP string) (*Report, error)) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	r, err := op(c.Request().Context(), rc.OrganizationID, id, rc.Principal.UserID, req.Response, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Verify(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid report id")
	}
	valid, err := h.svc.VerifySignature(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}
