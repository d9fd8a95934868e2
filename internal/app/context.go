package app

import (
	"context"

	"github.com/allenai/olmoe-modeld/internal/domain"
	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/allenai/olmoe-modeld/internal/infra/logger"
)

// Pipeline is the model acquisition surface the API layer consumes, kept as
// an interface so controllers don't import the engine package.
type Pipeline interface {
	StartDownload(ctx context.Context) error
	Cancel() bool
	Flush() error
	Reconcile() bool
	State() domain.DownloadState
}

type AttemptStore interface {
	SaveAttempt(a *domain.Attempt) error
	GetAttempts() ([]*domain.Attempt, error)
	GetAttempt(id string) (*domain.Attempt, error)
}

// Context holds the shared environment for modeld. It is constructed once in
// main and passed explicitly to whoever needs it.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Pipeline Pipeline
	Store    AttemptStore
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
