package patient

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

	api.GET("/patients", h.List, member)
	api.GET("/patients/:id", h.Get, member)
	api.GET("/patients/search", h.FindByCPF, staff)
	api.GET("/patients/:id/cpf", h.GetCPF, staff)
	api.POST("/patients", h.Create, staff)
	api.PUT("/patients/:id", h.Update, staff)
}

type patientRequest struct {
	FullName  string     `json:"full_name"`
	CPF       string     `json:"cpf"`
	BirthDate *time.Time `json:"birth_date"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email"`
}

func (h *Handler) Create(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	p := &Patient{
		OrganizationID: rc.OrganizationID,
		FullName:       req.FullName,
		BirthDate:      req.BirthDate,
		Phone:          req.Phone,
		Email:          req.Email,
	}
	if err := h.svc.Create(c.Request().Context(), p, req.CPF); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid patient id")
	}
	p, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) FindByCPF(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	cpf := c.QueryParam("cpf")
	if cpf == "" {
		return apperr.BadRequest("cpf query parameter is required")
	}
	p, err := h.svc.FindByCPF(c.Request().Context(), rc.OrganizationID, cpf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetCPF(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid patient id")
	}
	cpf, err := h.svc.CPF(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"cpf": cpf})
}

func (h *Handler) List(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	page := pagination.FromContext(c)

	patients, total, err := h.svc.List(c.Request().Context(), rc.OrganizationID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, page.Limit, page.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.BadRequest("invalid patient id")
	}

	p, err := h.svc.Get(c.Request().Context(), rc.OrganizationID, id)
	if err != nil {
		return err
	}

	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	p.FullName = req.FullName
	p.BirthDate = req.BirthDate
	p.Phone = req.Phone
	p.Email = req.Email

	if err := h.svc.Update(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
