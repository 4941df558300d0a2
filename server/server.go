// Package server exposes races over HTTP: start and cancel races, stream
// their lanes over SSE or WebSocket, list provider models and export results.
package server

import (
	"time"

	"llmrace/internal/completion"
	"llmrace/internal/config"
	"llmrace/internal/logger"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server wires the HTTP handlers to their services.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	client    *completion.Client
	races     *RaceManager
	models    *ModelDiscovery
	streams   *StreamHandler
	limiter   *RateLimiter
	startedAt time.Time
}

// New creates a Server.
func New(cfg *config.Config, client *completion.Client, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	races := NewRaceManager(client, log, RaceManagerOptions{CountdownTicks: cfg.Countdown})
	return &Server{
		cfg:       cfg,
		log:       log,
		client:    client,
		races:     races,
		models:    NewModelDiscovery(client, cfg.APIKey, log),
		streams:   NewStreamHandler(races, log),
		limiter:   NewRateLimiter(cfg.RaceRateLimit),
		startedAt: time.Now(),
	}
}

// Races returns the race manager.
func (s *Server) Races() *RaceManager { return s.races }
