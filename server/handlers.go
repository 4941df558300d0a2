package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"llmrace/internal/provider"
	"llmrace/internal/race"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Providers int       `json:"providers"`
	Races     int       `json:"races"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler returns server health status
func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   Version,
		Providers: len(s.client.Providers()),
		Races:     len(s.races.List()),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// ProvidersHandler lists registered providers.
func (s *Server) ProvidersHandler(c *gin.Context) {
	adapters := s.client.Providers()
	out := make([]ProviderInfo, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, ProviderInfo{ID: a.ID(), Name: a.Name(), HasAPIKey: s.cfg.APIKey(a.ID()) != ""})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out, "count": len(out)})
}

// ProviderModelsHandler lists one provider's models. X-API-Key overrides
// the server-side key.
func (s *Server) ProviderModelsHandler(c *gin.Context) {
	providerID := c.Param("providerId")
	pm, err := s.models.Models(c.Request.Context(), providerID, c.GetHeader("X-API-Key"))
	if err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, pm)
}

// ModelsHandler lists the models of every provider.
func (s *Server) ModelsHandler(c *gin.Context) {
	resp, err := s.models.All(c.Request.Context(), nil)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshModelsHandler drops cached model lists so the next listing hits
// the providers again.
func (s *Server) RefreshModelsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"invalidated": s.models.InvalidateModelCache()})
}

// LeaderboardHandler ranks the lanes of a race.
func (s *Server) LeaderboardHandler(c *gin.Context) {
	entry, ok := s.raceOr404(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, race.BuildLeaderboard(entry.Snapshot().Lanes))
}

// ExportJSONHandler exports a race as a JSON file
func (s *Server) ExportJSONHandler(c *gin.Context) {
	entry, ok := s.raceOr404(c)
	if !ok {
		return
	}
	snap := entry.Snapshot()

	filename := fmt.Sprintf("race_results_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.JSON(http.StatusOK, RaceResponse{
		ID:          entry.ID,
		CreatedAt:   entry.CreatedAt,
		Snapshot:    snap,
		Leaderboard: race.BuildLeaderboard(snap.Lanes),
	})
}

// ExportCSVHandler exports a race as a CSV file
func (s *Server) ExportCSVHandler(c *gin.Context) {
	entry, ok := s.raceOr404(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := race.WriteCSV(&buf, entry.Snapshot().Lanes); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("race_results_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func (s *Server) raceOr404(c *gin.Context) (*RaceEntry, bool) {
	entry, ok := s.races.Get(c.Param("raceId"))
	if !ok {
		respondError(c, http.StatusNotFound, ErrRaceNotFound)
		return nil, false
	}
	return entry, true
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
	})
}
