// Package web exposes the sensor registry over a small JSON API:
// listing sensors, inspecting reading history, and wiring sensors up or
// down. Graphing and rendering stay with the consumer.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pinwire/pinwire/sensor"
)

// LinkFactory builds a fresh connection for a newly registered pin.
type LinkFactory func() sensor.Link

// API serves the sensor status surface.
type API struct {
	registry       *sensor.Registry
	newLink        LinkFactory
	logger         *slog.Logger
	connectTimeout time.Duration
}

func NewAPI(registry *sensor.Registry, newLink LinkFactory) *API {
	return &API{
		registry:       registry,
		newLink:        newLink,
		logger:         slog.Default(),
		connectTimeout: 5 * time.Second,
	}
}

func (a *API) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger
	}
}

func (a *API) SetConnectTimeout(d time.Duration) {
	if d > 0 {
		a.connectTimeout = d
	}
}

// Routes returns the HTTP routes for the status API.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/sensors", a.HandleListSensors)
	r.Post("/sensors", a.HandleCreateSensor)
	r.Get("/sensors/{pin}", a.HandleSensorDetail)
	r.Post("/sensors/{pin}/connect", a.HandleSensorConnect)
	r.Post("/sensors/{pin}/disconnect", a.HandleSensorDisconnect)
	r.Delete("/sensors/{pin}", a.HandleDeleteSensor)
	return r
}

// Serve runs the API on addr until the server is closed.
func (a *API) Serve(addr string) error {
	a.logger.Info("Starting status API", "addr", addr)
	return http.ListenAndServe(addr, a.Routes())
}
