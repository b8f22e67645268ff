package web

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/pinwire/pinwire/sensor"
)

type sensorSummary struct {
	Pin       string  `json:"pin"`
	Connected bool    `json:"connected"`
	LastValue float32 `json:"last_value"`
	Samples   int     `json:"samples"`
}

type sensorDetail struct {
	sensorSummary
	History []float32 `json:"history"`
}

func summarize(s *sensor.Sensor) sensorSummary {
	return sensorSummary{
		Pin:       s.Pin(),
		Connected: s.IsConnected(),
		LastValue: s.LastValue(),
		Samples:   len(s.History()),
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) HandleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors := a.registry.List()

	summaries := make([]sensorSummary, 0, len(sensors))
	for _, s := range sensors {
		summaries = append(summaries, summarize(s))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Pin < summaries[j].Pin })

	a.writeJSON(w, http.StatusOK, summaries)
}

func (a *API) HandleSensorDetail(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin")
	s, ok := a.registry.Get(pin)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown pin")
		return
	}

	a.writeJSON(w, http.StatusOK, sensorDetail{
		sensorSummary: summarize(s),
		History:       s.History(),
	})
}

func (a *API) HandleCreateSensor(w http.ResponseWriter, r *http.Request) {
	if a.newLink == nil {
		a.writeError(w, http.StatusNotImplemented, "sensor creation not configured")
		return
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pin == "" {
		a.writeError(w, http.StatusBadRequest, "a pin is required")
		return
	}
	if _, exists := a.registry.Get(req.Pin); exists {
		a.writeError(w, http.StatusConflict, "pin already registered")
		return
	}

	s := sensor.New(req.Pin, a.newLink())
	a.registry.Store(s)
	a.logger.Info("Sensor registered", "pin", req.Pin)

	a.writeJSON(w, http.StatusCreated, summarize(s))
}

func (a *API) HandleSensorConnect(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin")
	s, ok := a.registry.Get(pin)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown pin")
		return
	}

	if err := s.Connect(a.connectTimeout); err != nil {
		a.logger.Warn("Sensor connect failed", "pin", pin, "error", err)
		a.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, summarize(s))
}

func (a *API) HandleSensorDisconnect(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin")
	s, ok := a.registry.Get(pin)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown pin")
		return
	}

	s.Disconnect()
	a.writeJSON(w, http.StatusOK, summarize(s))
}

func (a *API) HandleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	pin := chi.URLParam(r, "pin")
	s, ok := a.registry.Get(pin)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown pin")
		return
	}

	s.Disconnect()
	a.registry.Delete(pin)
	a.logger.Info("Sensor removed", "pin", pin)
	w.WriteHeader(http.StatusNoContent)
}
