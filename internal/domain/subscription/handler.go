package subscription

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/authz"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, p *authz.Pipeline) {
	// Billing routes stay reachable while the subscription itself is past
	// due or canceled; otherwise a lapsed tenant could never recover.
	owner := authz.Protect(p, authz.RouteMeta{Roles: []authz.Role{authz.RoleOwner}, Billing: true})
	member := authz.Protect(p, authz.RouteMeta{Billing: true})

	api.GET("/subscription", h.GetCurrent, member)
	api.POST("/subscription/activate", h.Activate, owner)
	api.POST("/subscription/cancel", h.Cancel, owner)
}

func (h *Handler) GetCurrent(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	sub, err := h.svc.Current(c.Request().Context(), rc.OrganizationID)
	if err != nil {
		return err
	}
	if sub == nil {
		return c.JSON(http.StatusOK, map[string]any{"subscription": nil})
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Activate(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	sub, err := h.svc.Activate(c.Request().Context(), rc.OrganizationID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Cancel(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	sub, err := h.svc.Cancel(c.Request().Context(), rc.OrganizationID, time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}
