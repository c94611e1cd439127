package doctor

import (
	"net/http"

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
	admin := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleAdmin, authz.RoleOwner}})

	api.GET("/doctors", h.List, member)
	api.GET("/doctors/me", h.GetMine, member)
	api.GET("/doctors/:id", h.Get, member)
	api.POST("/doctors", h.Create, admin)
	api.PUT("/doctors/:id", h.Update, admin)
	api.PATCH("/doctors/:id/active", h.SetActive, admin)
}

type createDoctorRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name"`
	CRMNumber string    `json:"crm_number"`
	CRMState  string    `json:"crm_state"`
	Specialty string    `json:"specialty"`
}

func (h *Handler) Create(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req createDoctorRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	d := &Doctor{
		OrganizationID: rc.OrganizationID,
		UserID:         req.UserID,
		FullName:       req.FullName,
		CRMNumber:      req.CRMNumber,
		CRMState:       req.CRMState,
		Specialty:      req.Specialty,
	}
	if err := h.svc.Create(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid doctor id")
	}
	d, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetMine(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	d, err := h.svc.ForUser(c.Request().Context(), rc.OrganizationID, rc.Principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	page := pagination.FromContext(c)

	doctors, total, err := h.svc.List(c.Request().Context(), rc.OrganizationID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, page.Limit, page.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid doctor id")
	}

	d, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}

	var req createDoctorRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	d.FullName = req.FullName
	d.CRMNumber = req.CRMNumber
	d.CRMState = req.CRMState
	d.Specialty = req.Specialty

	if err := h.svc.Update(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid doctor id")
	}

	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.svc.SetActive(c.Request().Context(), rc.OrganizationID, id, req.Active); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
