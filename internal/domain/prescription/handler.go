package prescription

import (
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

	api.GET("/prescriptions/:id", h.Get, member)
	api.GET("/patients/:patientId/prescriptions", h.ListByPatient, member)
	api.GET("/prescriptions/:id/verify", h.Verify, member)
	api.POST("/prescriptions", h.Create, doctor)
	api.PATCH("/prescriptions/:id", h.UpdateContent, doctor)
	api.POST("/prescriptions/:id/sign", h.Sign, doctor)
	api.POST("/prescriptions/:id/revoke", h.Revoke, doctor)
}

type createRequest struct {
	ConsultationID uuid.UUID      `json:"consultation_id"`
	Content        map[string]any `json:"content"`
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
	p, err := h.svc.Create(c.Request().Context(), rc.OrganizationID, req.ConsultationID, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid prescription id")
	}
	p, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
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
		return apperr.BadRequest("invalid prescription id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.UpdateContent(c.Request().Context(), rc.OrganizationID, id, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Sign(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid prescription id")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Sign(c.Request().Context(), rc.OrganizationID, id, doctorID, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Revoke(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid prescription id")
	}

	var req revokeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Revoke(c.Request().Context(), rc.OrganizationID, id, doctorID, req.Reason, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Verify(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid prescription id")
	}
	valid, err := h.svc.VerifySignature(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}
