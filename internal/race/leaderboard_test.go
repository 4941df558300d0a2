package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmrace/internal/provider"
)

func finishedLane(id string, ttft, gen time.Duration, out int) Lane {
	start := time.UnixMilli(0)
	return Lane{
		ID:     id,
		Status: LaneFinished,
		Metrics: &provider.Metrics{
			StartTime:      start,
			FirstTokenTime: start.Add(ttft),
			FinishTime:     start.Add(ttft + gen),
			OutputTokens:   out,
		},
	}
}

func TestLeaderboard(t *testing.T) {
	noFirstToken := finishedLane("c", 0, 0, 10)
	noFirstToken.Metrics.FirstTokenTime = time.Time{}

	lanes := []Lane{
		finishedLane("a", 300*time.Millisecond, 2*time.Second, 100), // 50 tok/s
		finishedLane("b", 120*time.Millisecond, 3*time.Second, 90),  // 30 tok/s
		noFirstToken,
		{ID: "d", Status: LaneError, Error: "boom"},
		finishedLane("e", 120*time.Millisecond, 0, 10), // zero-length generation
	}

	lb := BuildLeaderboard(lanes)

	require.Len(t, lb.FastestFirstToken, 3)
	assert.Equal(t, "b", lb.FastestFirstToken[0].LaneID)
	assert.Equal(t, "e", lb.FastestFirstToken[1].LaneID)
	assert.Equal(t, "a", lb.FastestFirstToken[2].LaneID)
	assert.Equal(t, 120.0, lb.FastestFirstToken[0].Value)
	assert.Equal(t, 1, lb.FastestFirstToken[0].Rank)
	assert.Equal(t, 3, lb.FastestFirstToken[2].Rank)

	require.Len(t, lb.HighestThroughput, 2, "lanes without a positive interval are excluded")
	assert.Equal(t, "a", lb.HighestThroughput[0].LaneID)
	assert.Equal(t, 50.0, lb.HighestThroughput[0].Value)
	assert.Equal(t, "b", lb.HighestThroughput[1].LaneID)
	assert.Equal(t, 30.0, lb.HighestThroughput[1].Value)
}

func TestLeaderboard_Empty(t *testing.T) {
	lb := BuildLeaderboard(nil)
	assert.Empty(t, lb.FastestFirstToken)
	assert.Empty(t, lb.HighestThroughput)
}

func TestRoundToTwoDecimals(t *testing.T) {
	assert.Equal(t, 33.33, roundToTwoDecimals(100.0/3))
	assert.Equal(t, 0.0, roundToTwoDecimals(0.001))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Mode: ModeTimeLimit, TimeLimit: 1.5, ModelSettings: provider.DefaultModelSettings()}.Validate())
	assert.Error(t, Config{Mode: ModeTimeLimit}.Validate())
	assert.Error(t, Config{Mode: ModeDrag, ModelSettings: provider.ModelSettings{Temperature: 5}}.Validate())
	assert.Equal(t, 1500*time.Millisecond, Config{TimeLimit: 1.5}.TimeLimitDuration())
}
