package controllers

import (
	"errors"
	"net/http"

	"github.com/allenai/olmoe-modeld/internal/app"
	"github.com/allenai/olmoe-modeld/internal/domain"
	"github.com/labstack/echo/v5"
)

type ModelController struct {
	App *app.Context
}

// State returns the current DownloadState snapshot for the presentation layer.
func (ctrl *ModelController) State(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Pipeline.State())
}

// StartDownload kicks off a new download attempt.
func (ctrl *ModelController) StartDownload(c *echo.Context) error {
	err := ctrl.App.Pipeline.StartDownload(c.Request().Context())

	switch {
	case errors.Is(err, domain.ErrDownloadInFlight):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNoConnectivity):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, ctrl.App.Pipeline.State())
}

// CancelDownload aborts the in-flight transfer, if any.
func (ctrl *ModelController) CancelDownload(c *echo.Context) error {
	if !ctrl.App.Pipeline.Cancel() {
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "no download in progress"})
	}
	return c.JSON(http.StatusAccepted, ctrl.App.Pipeline.State())
}

// Flush deletes the model artifact from disk.
func (ctrl *ModelController) Flush(c *echo.Context) error {
	if err := ctrl.App.Pipeline.Flush(); err != nil {
		if errors.Is(err, domain.ErrDownloadInFlight) {
			return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ctrl.App.Pipeline.State())
}

// Attempts returns the download attempt history.
func (ctrl *ModelController) Attempts(c *echo.Context) error {
	attempts, err := ctrl.App.Store.GetAttempts()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	if attempts == nil {
		attempts = []*domain.Attempt{}
	}
	return c.JSON(http.StatusOK, attempts)
}

// Attempt returns a single attempt by its id, or 404.
func (ctrl *ModelController) Attempt(c *echo.Context) error {
	id := c.Param("id")

	attempt, err := ctrl.App.Store.GetAttempt(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if attempt == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "attempt not found"})
	}
	return c.JSON(http.StatusOK, attempt)
}

// Health is the liveness probe.
func (ctrl *ModelController) Health(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
