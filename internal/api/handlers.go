package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"jt-wrs/backend/internal/services"
	"jt-wrs/backend/pkg/models"
)

const (
	serviceName    = "jt-wrs"
	serviceVersion = "0.1.0"
)

// Pinger is satisfied by anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the operational endpoints of the registry service.
type Handler struct {
	store Pinger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(store Pinger) *Handler {
	return &Handler{store: store}
}

// HandleHealth reports service health. A failing store ping turns the
// response into 503.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
		Version:   serviceVersion,
		Checks:    map[string]string{"store": "ok"},
	}
	code := http.StatusOK
	if err := h.store.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
		status.Checks["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// statusFor maps the registry error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrOwnerNotFound), errors.Is(err, services.ErrOwnerIDNotFound):
		return http.StatusNotFound, "Owner Not Found"
	case errors.Is(err, services.ErrArtifactNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, services.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Account Service Unavailable"
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Store Unavailable"
	case errors.Is(err, services.ErrSourceUnavailable):
		return http.StatusServiceUnavailable, "Source Control Unavailable"
	case errors.Is(err, services.ErrDuplicateRegistration):
		return http.StatusConflict, "Duplicate Registration"
	case errors.Is(err, services.ErrRegistrationConflict):
		return http.StatusConflict, "Registration Conflict"
	case errors.Is(err, services.ErrVersionTagMismatch):
		return http.StatusBadRequest, "Version Tag Mismatch"
	case errors.Is(err, services.ErrInvalidWorkflowDefinition):
		return http.StatusBadRequest, "Invalid Workflow Definition"
	case errors.Is(err, services.ErrDefinitionNotFound):
		return http.StatusBadRequest, "Workflow Definition Not Found"
	case errors.Is(err, services.ErrInvalidEntry):
		return http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, services.ErrUnsupportedWorkflowType):
		return http.StatusNotImplemented, "Unsupported Workflow Type"
	case errors.Is(err, services.ErrNotImplemented):
		return http.StatusNotImplemented, "Not Implemented"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	body, err := json.Marshal(problem)
	if err != nil {
		return err
	}
	return c.Blob(status, "application/problem+json", body)
}

// writeServiceError writes err as a problem response. Internal errors carry
// no detail.
func writeServiceError(c echo.Context, err error) error {
	status, title := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
		detail = ""
	}
	return writeError(c, status, title, detail)
}
