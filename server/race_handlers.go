package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"llmrace/internal/logger"
	"llmrace/internal/race"
)

// raceConfig overlays the request config on the defaults.
func raceConfig(raw json.RawMessage) (race.Config, error) {
	cfg := race.DefaultConfig()
	if len(raw) == 0 || string(raw) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return race.Config{}, fmt.Errorf("invalid race config: %w", err)
	}
	return cfg, nil
}

// StartRace validates the request and starts a race in the background.
func (s *Server) StartRace(c *gin.Context) {
	var req StartRaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request payload: %w", err))
		return
	}

	cfg, err := raceConfig(req.Config)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	providerIDs := make([]string, 0, len(req.Selections))
	for _, sel := range req.Selections {
		if _, err := s.client.Adapter(sel.ProviderID); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		providerIDs = append(providerIDs, sel.ProviderID)
	}

	entry, err := s.races.Create(race.StartParams{
		Prompt:        req.Prompt,
		Selections:    req.Selections,
		Config:        cfg,
		APIKeys:       s.cfg.ResolveKeys(req.APIKeys, providerIDs),
		ReducedMotion: req.ReducedMotion,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNoRunnableLanes) {
			status = http.StatusUnprocessableEntity
		}
		respondError(c, status, err)
		return
	}

	s.log.InfoWithContext(&logger.LogContext{RaceID: entry.ID, Operation: "start"},
		"Race accepted: mode=%s selections=%d", cfg.Mode, len(req.Selections))

	base := "/api/races/" + entry.ID
	c.JSON(http.StatusAccepted, StartRaceResponse{
		RaceID:    entry.ID,
		Started:   true,
		State:     entry.Snapshot().State,
		StreamURL: base + "/stream",
		SocketURL: base + "/ws",
	})
}

// ListRaces returns a summary of every known race.
func (s *Server) ListRaces(c *gin.Context) {
	entries := s.races.List()
	out := make([]RaceSummary, 0, len(entries))
	for _, e := range entries {
		snap := e.Snapshot()
		out = append(out, RaceSummary{
			ID:        e.ID,
			State:     snap.State,
			Prompt:    snap.Prompt,
			Mode:      snap.Config.Mode,
			Lanes:     len(snap.Lanes),
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"races": out, "count": len(out)})
}

// GetRace returns one race snapshot.
func (s *Server) GetRace(c *gin.Context) {
	entry, ok := s.raceOr404(c)
	if !ok {
		return
	}
	snap := entry.Snapshot()
	c.JSON(http.StatusOK, RaceResponse{
		ID:          entry.ID,
		CreatedAt:   entry.CreatedAt,
		Snapshot:    snap,
		Leaderboard: race.BuildLeaderboard(snap.Lanes),
	})
}

// CancelRace resets a race.
func (s *Server) CancelRace(c *gin.Context) {
	raceID := c.Param("raceId")
	snap, err := s.races.Cancel(raceID)
	if err != nil {
		s.log.WarnWithContext(&logger.LogContext{RaceID: raceID}, "Failed to cancel race: %v", err)
		respondError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Race cancelled",
		"raceId":  raceID,
		"state":   snap.State,
	})
}
