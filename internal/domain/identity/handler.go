package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, p *authz.Pipeline) {
	public := authz.Protect(p, authz.RouteMeta{Public: true})
	// MFA completion is the one route a temporary credential may reach.
	mfa := authz.Protect(p, authz.RouteMeta{MFACompletion: true, Tenantless: true})
	self := authz.Protect(p, authz.RouteMeta{Tenantless: true})

	api.POST("/auth/register", h.Register, public)
	api.POST("/auth/login", h.Login, public)
	api.POST("/auth/refresh", h.Refresh, public)
	api.POST("/auth/mfa/complete", h.CompleteMFA, mfa)
	api.POST("/auth/logout", h.Logout, self)
	api.POST("/auth/password", h.ChangePassword, self)
	api.POST("/auth/mfa", h.SetMFA, self)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	CPF      string `json:"cpf"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	u, err := h.svc.Register(c.Request().Context(), req.Email, req.Password, req.FullName, req.CPF)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type mfaCompleteRequest struct {
	Code string `json:"code"`
}

func (h *Handler) CompleteMFA(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req mfaCompleteRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	res, err := h.svc.CompleteMFA(c.Request().Context(), rc.Principal.UserID, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	res, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())
	if err := h.svc.Logout(c.Request().Context(), rc.Principal.UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.svc.ChangePassword(c.Request().Context(), rc.Principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type setMFARequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) SetMFA(c echo.Context) error {
	rc := authz.FromContext(c.Request().Context())

	var req setMFARequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("malformed request body")
	}
	if err := h.svc.SetMFAEnabled(c.Request().Context(), rc.Principal.UserID, req.Enabled); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
