// Package handlers maps the HTTP API onto the workflow services.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/auth"
	"github.com/bannerdesk/banner-service/internal/catalog"
	"github.com/bannerdesk/banner-service/internal/comments"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/importer"
	"github.com/bannerdesk/banner-service/internal/middleware"
	"github.com/bannerdesk/banner-service/internal/notifications"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// MaxUploadSize caps a single uploaded file.
const MaxUploadSize = 20 << 20

// Deps are the services the handlers call into.
type Deps struct {
	Store         database.Store
	Auth          *auth.Service
	Catalog       *catalog.Service
	Images        *workflow.Service
	Comments      *comments.Service
	Alerts        *alerts.Aggregator
	Importer      *importer.Importer
	Notifications *notifications.Service
	Logger        *zerolog.Logger
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string         `json:"error" jsonschema:"required"`
	Code    string         `json:"code" jsonschema:"required"`
	Details map[string]any `json:"details,omitempty"`
}

// Register mounts the API on r. limited wraps routes that are rate limited
// separately (login and import).
func (h *Handler) Register(r gin.IRouter, limited gin.HandlerFunc) {
	if limited == nil {
		limited = func(c *gin.Context) { c.Next() }
	}

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/auth/login", limited, h.Login)

	authed := api.Group("", middleware.RequireUser())
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
	authed.GET("/users", h.ListUsers)
	authed.POST("/users", h.CreateUser)

	authed.GET("/municipalities", h.ListMunicipalities)
	authed.POST("/municipalities", h.CreateMunicipality)
	authed.GET("/municipalities/:id", h.GetMunicipality)
	authed.PATCH("/municipalities/:id", h.UpdateMunicipality)
	authed.DELETE("/municipalities/:id", h.DeleteMunicipality)

	authed.GET("/businesses", h.ListBusinesses)
	authed.POST("/businesses", h.CreateBusiness)
	authed.GET("/businesses/:id", h.GetBusiness)
	authed.PATCH("/businesses/:id", h.UpdateBusiness)
	authed.DELETE("/businesses/:id", h.DeleteBusiness)
	authed.POST("/businesses/:id/portals/:portal", h.ToggleBusinessPortal)

	authed.GET("/products", h.ListProducts)
	authed.POST("/products", h.CreateProduct)
	authed.GET("/products/:id", h.GetProduct)
	authed.PATCH("/products/:id", h.UpdateProduct)
	authed.DELETE("/products/:id", h.DeleteProduct)

	authed.GET("/projects", h.ListProjects)
	authed.POST("/projects", h.CreateProject)
	authed.PATCH("/projects/:id", h.UpdateProject)
	authed.DELETE("/projects/:id", h.DeleteProject)

	authed.GET("/images", h.ListImages)
	authed.POST("/images", h.CreateImage)
	authed.GET("/images/:id", h.GetImage)
	authed.DELETE("/images/:id", h.DeleteImage)
	authed.POST("/images/:id/versions", h.AddVersion)
	authed.PUT("/images/:id/versions/:versionId/status", h.UpdateVersionStatus)
	authed.GET("/images/:id/compare", h.CompareVersions)

	authed.GET("/images/:id/comments", h.ListComments)
	authed.POST("/images/:id/comments", h.AddComment)
	authed.POST("/images/:id/comments/read", h.MarkThreadRead)
	authed.DELETE("/comments/:id", h.DeleteComment)

	authed.GET("/alerts", h.ListAlerts)
	authed.POST("/imports", limited, h.Import)

	authed.GET("/notifications", h.ListNotifications)
	authed.PUT("/notifications/:id/read", h.SetNotificationRead)
}

// fail renders err. Unclassified errors are logged and hidden.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	var ae *apperr.Error
	if status >= http.StatusInternalServerError || !errors.As(err, &ae) {
		h.Logger.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.GetRequestID(c)).
			Msg("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
		return
	}
	c.JSON(status, ErrorResponse{Error: ae.Message, Code: ae.Code, Details: ae.Details})
}

func (h *Handler) badRequest(c *gin.Context, format string, args ...any) {
	h.fail(c, apperr.Validation(format, args...))
}

func actor(c *gin.Context) *identity.User {
	return middleware.CurrentUser(c)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

// queryID parses an optional positive id query parameter.
func queryID(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Validation("invalid %s %q", name, raw)
	}
	return &id, nil
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Wrap(apperr.Validation("invalid request body"), err)
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > MaxUploadSize {
		return nil, apperr.Validation("file %q exceeds %d bytes", fh.Filename, MaxUploadSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	if len(data) > MaxUploadSize {
		return nil, apperr.Validation("file %q exceeds %d bytes", fh.Filename, MaxUploadSize)
	}
	return data, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == "multipart/form-data"
}
