package race

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"llmrace/internal/provider"
)

// Lane-level errors.
var (
	ErrMissingAPIKey             = errors.New("API Key not set")
	ErrStreamEndedWithoutMetrics = errors.New("Stream ended without metrics")
	ErrCancelled                 = errors.New("Race cancelled")
	ErrRaceInProgress            = errors.New("race already in progress")
)

// Mode governs when a lane stops consuming output early.
type Mode string

const (
	ModeDrag       Mode = "drag"
	ModeTokenLimit Mode = "token_limit"
	ModeTimeLimit  Mode = "time_limit"
	ModeFreeForAll Mode = "free_for_all"
)

// Limited reports whether the mode truncates lanes.
func (m Mode) Limited() bool {
	return m == ModeTokenLimit || m == ModeTimeLimit
}

// Config is replaced wholesale on change.
type Config struct {
	Mode          Mode                   `json:"mode" yaml:"mode"`
	TokenLimit    int                    `json:"tokenLimit,omitempty" yaml:"token-limit,omitempty"`
	TimeLimit     float64                `json:"timeLimit,omitempty" yaml:"time-limit,omitempty"` // seconds
	ModelSettings provider.ModelSettings `json:"modelSettings" yaml:"model-settings"`
	// ReasoningExcluded lists model ids that never receive a reasoning effort.
	ReasoningExcluded []string `json:"reasoningExcluded,omitempty" yaml:"reasoning-excluded,omitempty"`
}

// DefaultConfig is a drag race with default settings.
func DefaultConfig() Config {
	return Config{Mode: ModeDrag, ModelSettings: provider.DefaultModelSettings()}
}

// Validate checks the mode and its limit.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeDrag, ModeFreeForAll:
	case ModeTokenLimit:
		if c.TokenLimit <= 0 {
			return fmt.Errorf("token_limit mode requires a positive tokenLimit, got %d", c.TokenLimit)
		}
	case ModeTimeLimit:
		if c.TimeLimit <= 0 {
			return fmt.Errorf("time_limit mode requires a positive timeLimit, got %v", c.TimeLimit)
		}
	default:
		return fmt.Errorf("unknown race mode %q", c.Mode)
	}
	return c.ModelSettings.Validate()
}

// TimeLimitDuration converts TimeLimit to a duration.
func (c Config) TimeLimitDuration() time.Duration {
	return time.Duration(c.TimeLimit * float64(time.Second))
}

// settingsFor strips the reasoning effort from excluded models.
func (c Config) settingsFor(model string) provider.ModelSettings {
	s := c.ModelSettings
	if slices.Contains(c.ReasoningExcluded, model) {
		s.ReasoningEffort = ""
	}
	return s
}

// Selection is one chosen (provider, model) pair.
type Selection struct {
	ProviderID string `json:"providerId" yaml:"provider-id"`
	ModelID    string `json:"modelId" yaml:"model-id"`
	Disabled   bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// LaneStatus is the derived status of a lane.
type LaneStatus string

const (
	LaneStaging  LaneStatus = "staging"
	LaneRacing   LaneStatus = "racing"
	LaneFinished LaneStatus = "finished"
	LaneError    LaneStatus = "error"
)

// Terminal reports whether the lane has settled.
func (s LaneStatus) Terminal() bool {
	return s == LaneFinished || s == LaneError
}

// State is the global race state.
type State string

const (
	StateIdle         State = "idle"
	StateCountingDown State = "countingDown"
	StateRacing       State = "racing"
	StateFinished     State = "finished"
)

// LaneID is "{providerId}-{modelId}".
func LaneID(providerID, modelID string) string {
	return providerID + "-" + modelID
}

// Lane is one (provider, model) participant. Text is append-only.
type Lane struct {
	ID         string            `json:"id" yaml:"id"`
	ProviderID string            `json:"providerId" yaml:"provider-id"`
	ModelID    string            `json:"modelId" yaml:"model-id"`
	Status     LaneStatus        `json:"status" yaml:"status"`
	Loading    bool              `json:"loading" yaml:"loading"`
	Text       string            `json:"text" yaml:"text"`
	Chunks     int               `json:"chunks" yaml:"chunks"`
	Metrics    *provider.Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
}

func (l *Lane) clone() Lane {
	c := *l
	if l.Metrics != nil {
		m := *l.Metrics
		c.Metrics = &m
	}
	return c
}

// UpdateKind tags an Update.
type UpdateKind string

const (
	UpdateState     UpdateKind = "state"
	UpdateCountdown UpdateKind = "countdown"
	UpdateLane      UpdateKind = "lane"
	UpdateChunk     UpdateKind = "chunk"
)

// Update is one transition published to listeners. Lane carries a copy
// for lane and chunk updates; Chunk is the delta just appended.
type Update struct {
	Kind      UpdateKind `json:"kind"`
	State     State      `json:"state,omitempty"`
	Countdown int        `json:"countdown,omitempty"`
	Lane      *Lane      `json:"lane,omitempty"`
	Chunk     string     `json:"chunk,omitempty"`
	Time      time.Time  `json:"time"`
}

// Listener receives updates in order from a single goroutine. It must not block.
type Listener func(Update)

// Snapshot is a consistent copy of a race.
type Snapshot struct {
	State     State     `json:"state" yaml:"state"`
	Prompt    string    `json:"prompt" yaml:"prompt"`
	Config    Config    `json:"config" yaml:"config"`
	StartedAt time.Time `json:"startedAt,omitzero" yaml:"started-at,omitempty"`
	Lanes     []Lane    `json:"lanes" yaml:"lanes"`
}

// StartParams are the inputs of a race.
type StartParams struct {
	Prompt     string
	Selections []Selection
	Config     Config
	// APIKeys maps provider id to key.
	APIKeys       map[string]string
	ReducedMotion bool
}
