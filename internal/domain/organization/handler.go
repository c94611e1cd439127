package organization

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

func (h *Handler) RegisterRoutes(api *echo.Group, p *authz.Pipeline, sp *authz.SuperAdminPipeline) {
	// Creating an organization only needs an authenticated user; the
	// caller becomes its OWNER.
	api.POST("/organizations", h.Create, authz.Protect(p, authz.RouteMeta{Tenantless: true}))
	api.GET("/organizations/me", h.ListMine, authz.Protect(p, authz.RouteMeta{Tenantless: true}))

	member := authz.Protect(p, authz.RouteMeta{})
	admin := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleAdmin, authz.RoleOwner}})

	api.GET("/organizations/current", h.GetCurrent, member)
	api.GET("/members", h.ListMembers, member)
	api.POST("/members", h.AddMember, admin)
	api.PATCH("/members/:userId/active", h.SetMemberActive, admin)

	api.GET("/admin/organizations", h.ListAll, authz.ProtectSuperAdmin(sp))
}

type createOrgRequest struct {
	Name string  `json:"name"`
	CNPJ *string `json:"cnpj"`
}

func (h *Handler) Create(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req createOrgRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}

	org, err := h.svc.Create(c.Request().Context(), req.Name, req.CNPJ, rc.Principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, org)
}

func (h *Handler) GetCurrent(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	org, err := h.svc.Get(c.Request().Context(), rc.OrganizationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, org)
}

func (h *Handler) ListMine(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	members, err := h.svc.ListForUser(c.Request().Context(), rc.Principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) ListMembers(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	page := pagination.FromContext(c)

	members, total, err := h.svc.ListMembers(c.Request().Context(), rc.OrganizationID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(members, total, page.Limit, page.Offset))
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

func (h *Handler) AddMember(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req addMemberRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		return apperr.BadRequest("unknown role")
	}

	m, err := h.svc.AddMember(c.Request().Context(), rc.OrganizationID, req.UserID, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) SetMemberActive(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return apperr.BadRequest("invalid user id")
	}

	var req setActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}

	if err := h.svc.SetMemberActive(c.Request().Context(), rc.OrganizationID, userID, req.Active); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAll(c echo.Context) error {
	page := pagination.FromContext(c)
	orgs, total, err := h.svc.orgs.List(c.Request().Context(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orgs, total, page.Limit, page.Offset))
}
