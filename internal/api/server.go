// Package api exposes the HTTP surface: spot and prompt administration,
// scrape/tide ingestion, reconciled score reads, and the live score feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/spotline/spotline/internal/domain/conditions"
	"github.com/spotline/spotline/internal/domain/tide"
	"github.com/spotline/spotline/internal/ingest"
	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/scheduler"
)

// Server is the HTTP layer over the store and ingestion service.
type Server struct {
	store  *persistence.Store
	ingest *ingest.Service
	sched  *scheduler.Scheduler
	hub    *Hub
}

// NewServer wires the HTTP surface. sched may be nil when the scheduler
// is disabled.
func NewServer(store *persistence.Store, svc *ingest.Service, sched *scheduler.Scheduler, hub *Hub) *Server {
	return &Server{store: store, ingest: svc, sched: sched, hub: hub}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", s.hub).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/spots", s.handleListSpots).Methods(http.MethodGet)
	api.HandleFunc("/spots", s.handleCreateSpot).Methods(http.MethodPost)
	api.HandleFunc("/spots/{id}", s.handleGetSpot).Methods(http.MethodGet)
	api.HandleFunc("/spots/{id}/slots", s.handleCurrentSlots).Methods(http.MethodGet)
	api.HandleFunc("/spots/{id}/scores", s.handleScores).Methods(http.MethodGet)
	api.HandleFunc("/spots/{id}/forecasts", s.handleIngestForecast).Methods(http.MethodPost)
	api.HandleFunc("/spots/{id}/tides", s.handleReplaceTides).Methods(http.MethodPut)
	api.HandleFunc("/spots/{id}/prompts", s.handleSaveScoringPrompt).Methods(http.MethodPut)
	api.HandleFunc("/prompts/sports/{sport}", s.handleSaveSportPrompt).Methods(http.MethodPut)
	api.HandleFunc("/slots/{id}/history", s.handleScoreHistory).Methods(http.MethodGet)
	api.HandleFunc("/slots/{id}/logs", s.handleScoringLogs).Methods(http.MethodGet)
	api.HandleFunc("/scheduler/status", s.handleSchedulerStatus).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.ClientCount(),
		"time":        time.Now().UTC(),
	})
}

func (s *Server) handleListSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := s.store.Spots.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list spots")
		return
	}
	writeJSON(w, http.StatusOK, spots)
}

func (s *Server) handleCreateSpot(w http.ResponseWriter, r *http.Request) {
	var spot persistence.Spot
	if err := json.NewDecoder(r.Body).Decode(&spot); err != nil {
		writeError(w, http.StatusBadRequest, "invalid spot payload")
		return
	}
	if spot.Name == "" {
		writeError(w, http.StatusBadRequest, "spot name is required")
		return
	}
	for _, tag := range spot.Sports {
		if _, ok := conditions.FromTag(tag); !ok {
			writeError(w, http.StatusBadRequest, "unknown sport: "+tag)
			return
		}
	}
	id, err := s.store.Spots.Create(r.Context(), spot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create spot")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetSpot(w http.ResponseWriter, r *http.Request) {
	spot, err := s.store.Spots.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "spot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load spot")
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

// sportAssessment is the per-sport threshold verdict for one slot.
type sportAssessment struct {
	MeetsMinimum bool `json:"meets_minimum"`
	IsEpic       bool `json:"is_epic"`
}

// slotView is a stored slot plus its tide and condition annotations.
type slotView struct {
	persistence.ForecastSlot
	Tide          *tide.Match                `json:"tide,omitempty"`
	Sports        map[string]sportAssessment `json:"sports,omitempty"`
	WindFavorable *bool                      `json:"wind_favorable,omitempty"`
}

func slotConditions(slot persistence.ForecastSlot) conditions.Conditions {
	return conditions.Conditions{
		WindSpeedKts: slot.WindSpeed,
		WindGustKts:  slot.WindGust,
		WindDirDeg:   slot.WindDir,
		WaveHeightM:  slot.WaveHeight,
		WavePeriodS:  slot.WavePeriod,
		WaveDirDeg:   slot.WaveDir,
	}
}

func (s *Server) handleCurrentSlots(w http.ResponseWriter, r *http.Request) {
	spotID := mux.Vars(r)["id"]
	slots, err := s.store.Slots.CurrentSlots(r.Context(), spotID, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load slots")
		return
	}
	events, err := s.store.Tides.List(r.Context(), spotID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load tides")
		return
	}

	// Sport and wind-sector annotations need the spot row; a missing spot
	// just means bare slots.
	var spot *persistence.Spot
	if sp, err := s.store.Spots.Get(r.Context(), spotID); err == nil {
		spot = sp
	} else if !errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to load spot")
		return
	}
	var spotSports []conditions.Sport
	if spot != nil {
		for _, tag := range spot.Sports {
			if sp, ok := conditions.FromTag(tag); ok {
				spotSports = append(spotSports, sp)
			}
		}
	}

	// One shared used-set across the ordered slots so each extremum is
	// attributed exactly once.
	used := map[int64]bool{}
	views := make([]slotView, len(slots))
	for i, slot := range slots {
		var end int64
		if i+1 < len(slots) {
			end = slots[i+1].Timestamp
		}
		views[i] = slotView{
			ForecastSlot: slot,
			Tide:         tide.FindTideForSlot(slot.Timestamp, end, events, used),
		}

		c := slotConditions(slot)
		if len(spotSports) > 0 {
			verdicts := make(map[string]sportAssessment, len(spotSports))
			for _, sp := range spotSports {
				verdicts[sp.Tag()] = sportAssessment{
					MeetsMinimum: sp.MeetsMinimum(c),
					IsEpic:       sp.IsEpic(c),
				}
			}
			views[i].Sports = verdicts
		}
		if spot != nil && spot.WindDirFrom != nil && spot.WindDirTo != nil {
			favorable := conditions.DirectionInRange(slot.WindDir, *spot.WindDirFrom, *spot.WindDirTo)
			views[i].WindFavorable = &favorable
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	spotID := mux.Vars(r)["id"]
	sport := r.URL.Query().Get("sport")
	if sport != "" {
		if _, ok := conditions.FromTag(sport); !ok {
			writeError(w, http.StatusBadRequest, "unknown sport: "+sport)
			return
		}
	}
	var userID *string
	if u := r.URL.Query().Get("user"); u != "" {
		userID = &u
	}

	scores, err := s.store.Scores.GetConditionScores(r.Context(), spotID, sport, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scores")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

type forecastPayload struct {
	ScrapeTS int64              `json:"scrape_ts"`
	Slots    []ingest.SlotInput `json:"slots"`
}

func (s *Server) handleIngestForecast(w http.ResponseWriter, r *http.Request) {
	spotID := mux.Vars(r)["id"]
	var payload forecastPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid forecast payload")
		return
	}
	if payload.ScrapeTS == 0 {
		payload.ScrapeTS = time.Now().UnixMilli()
	}

	res, err := s.ingest.SaveForecastSlots(r.Context(), spotID, payload.ScrapeTS, payload.Slots)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to ingest forecast")
		return
	}
	status := http.StatusCreated
	if !res.IsSuccessful {
		// Recorded, but rejected by validation
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleReplaceTides(w http.ResponseWriter, r *http.Request) {
	spotID := mux.Vars(r)["id"]
	var events []tide.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tide payload")
		return
	}
	if err := s.ingest.ReplaceTideEvents(r.Context(), spotID, events); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"events": len(events)})
}

func (s *Server) handleSaveScoringPrompt(w http.ResponseWriter, r *http.Request) {
	var p persistence.ScoringPrompt
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt payload")
		return
	}
	p.SpotID = mux.Vars(r)["id"]
	if _, ok := conditions.FromTag(p.Sport); !ok {
		writeError(w, http.StatusBadRequest, "unknown sport: "+p.Sport)
		return
	}
	id, err := s.store.Prompts.SaveScoringPrompt(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleSaveSportPrompt(w http.ResponseWriter, r *http.Request) {
	var p persistence.SystemSportPrompt
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt payload")
		return
	}
	p.Sport = mux.Vars(r)["sport"]
	if _, ok := conditions.FromTag(p.Sport); !ok {
		writeError(w, http.StatusBadRequest, "unknown sport: "+p.Sport)
		return
	}
	if p.Text == "" {
		writeError(w, http.StatusBadRequest, "prompt text is required")
		return
	}
	id, err := s.store.Prompts.SaveSystemSportPrompt(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	slotID := mux.Vars(r)["id"]
	sport := r.URL.Query().Get("sport")
	if sport == "" {
		writeError(w, http.StatusBadRequest, "sport query parameter is required")
		return
	}
	history, err := s.store.Scores.ListHistory(r.Context(), slotID, sport)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleScoringLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.Logs.ListBySlot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scoring logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.sched.GetStatus())
}
