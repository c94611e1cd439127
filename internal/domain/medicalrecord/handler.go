package medicalrecord

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
	"github.com/clinika/clinika/pkg/pagination"
)

// DoctorResolver maps the authenticated user to their doctor profile in the
// organization.
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

	api.GET("/medical-records/:id", h.Get, member)
	api.GET("/patients/:patientId/medical-records", h.ListByPatient, member)
	api.GET("/medical-records/:id/verify", h.Verify, member)
	api.POST("/medical-records", h.Create, doctor)
	api.PATCH("/medical-records/:id", h.UpdateContent, doctor)
	api.POST("/medical-records/:id/sign", h.Sign, doctor)
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
	rec, err := h.svc.Create(c.Request().Context(), rc.OrganizationID, req.ConsultationID, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid record id")
	}
	rec, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return apperr.BadRequest("invalid patient id")
	}
	page := pagination.FromContext(c)

	records, total, err := h.svc.ListByPatient(c.Request().Context(), rc.OrganizationID, patientID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, page.Limit, page.Offset))
}

type updateRequest struct {
	Content map[string]any `json:"content"`
}

func (h *Handler) UpdateContent(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid record id")
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.UpdateContent(c.Request().Context(), rc.OrganizationID, id, doctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Sign(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid record id")
	}
	doctorID, err := h.doctors.DoctorID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Sign(c.Request().Context(), rc.OrganizationID, id, doctorID, c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Verify(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid record id")
	}
	valid, err := h.svc.VerifySignature(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}
