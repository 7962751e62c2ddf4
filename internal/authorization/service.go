package authorization

import (
	"context"
	"errors"
)

const (
	ObjectForecast = "forecast"
	ObjectModel    = "model"
)

const (
	ActionForecastView    = "forecast.view"
	ActionForecastRefresh = "forecast.refresh"
	ActionModelView       = "model.view"
	ActionModelTrain      = "model.train"
)

const (
	RoleReader  = "role:reader"
	RoleTrainer = "role:trainer"
)

type Service interface {
	// Enabled reports whether any API key is configured.
	Enabled() bool
	// Authenticate maps an API key to its subject.
	Authenticate(apiKey string) (string, error)
	Authorize(ctx context.Context, subject, object, action string) error
}

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
)
