package authz

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

// OrganizationHeader is the tenant header contract. The organization_id
// body field remains as a fallback for older clients.
const OrganizationHeader = "X-Organization-ID"

const orgBodyField = "organization_id"

// Protect returns route middleware that runs the pipeline with the given
// metadata and, on success, threads the enriched request context through
// the request.
func Protect(p *Pipeline, meta RouteMeta) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := Request{
				Method:         c.Request().Method,
				BearerToken:    bearerToken(c),
				OrganizationID: organizationID(c),
				ClientIP:       c.RealIP(),
				Meta:           meta,
			}

			rc, err := p.Run(c.Request().Context(), req)
			if err != nil {
				return err
			}

			ctx := WithRequestContext(c.Request().Context(), rc)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// ProtectSuperAdmin guards platform-operator routes.
func ProtectSuperAdmin(p *SuperAdminPipeline) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := Request{
				Method:      c.Request().Method,
				BearerToken: bearerToken(c),
				ClientIP:    c.RealIP(),
			}
			rc, err := p.Run(c.Request().Context(), req)
			if err != nil {
				return err
			}
			ctx := WithRequestContext(c.Request().Context(), rc)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// organizationID reads the tenant identifier from the header, falling back
// to the organization_id body field for compatibility. The body is restored
// so handlers can still bind it.
func organizationID(c echo.Context) string {
	if id := c.Request().Header.Get(OrganizationHeader); id != "" {
		return id
	}

	req := c.Request()
	if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}

	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	id, _ := body[orgBodyField].(string)
	return id
}
