package race

import (
	"math"
	"sort"
)

// Entry is one ranked lane.
type Entry struct {
	Rank       int     `json:"rank" yaml:"rank"`
	LaneID     string  `json:"laneId" yaml:"lane-id"`
	ProviderID string  `json:"providerId" yaml:"provider-id"`
	ModelID    string  `json:"modelId" yaml:"model-id"`
	Value      float64 `json:"value" yaml:"value"`
}

// Leaderboard holds both rankings of a race.
type Leaderboard struct {
	FastestFirstToken []Entry `json:"fastestFirstToken" yaml:"fastest-first-token"` // TTFT in ms, ascending
	HighestThroughput []Entry `json:"highestThroughput" yaml:"highest-throughput"`  // tokens/s, descending
}

func roundToTwoDecimals(f float64) float64 {
	return math.Round(f*100) / 100
}

// BuildLeaderboard ranks finished lanes.
func BuildLeaderboard(lanes []Lane) Leaderboard {
	return Leaderboard{
		FastestFirstToken: FastestFirstToken(lanes),
		HighestThroughput: HighestThroughput(lanes),
	}
}

// FastestFirstToken ranks finished lanes by time to first token. Lanes
// without a first token are left out.
func FastestFirstToken(lanes []Lane) []Entry {
	var out []Entry
	for _, l := range lanes {
		if l.Status != LaneFinished || l.Metrics == nil {
			continue
		}
		ttft, ok := l.Metrics.TTFT()
		if !ok {
			continue
		}
		out = append(out, entryFor(l, float64(ttft.Milliseconds())))
	}
	rank(out, func(a, b float64) bool { return a < b })
	return out
}

// HighestThroughput ranks finished lanes by output tokens per second.
// Lanes whose throughput is undefined are left out, not ranked as zero.
func HighestThroughput(lanes []Lane) []Entry {
	var out []Entry
	for _, l := range lanes {
		if l.Status != LaneFinished || l.Metrics == nil {
			continue
		}
		tput, ok := l.Metrics.Throughput()
		if !ok {
			continue
		}
		out = append(out, entryFor(l, roundToTwoDecimals(tput)))
	}
	rank(out, func(a, b float64) bool { return a > b })
	return out
}

func entryFor(l Lane, v float64) Entry {
	return Entry{LaneID: l.ID, ProviderID: l.ProviderID, ModelID: l.ModelID, Value: v}
}

// rank sorts by value, breaking ties by lane id, and numbers from 1.
func rank(entries []Entry, better func(a, b float64) bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return better(entries[i].Value, entries[j].Value)
		}
		return entries[i].LaneID < entries[j].LaneID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
