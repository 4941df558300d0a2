package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"llmrace/internal/logger"
	"llmrace/internal/race"
)

func (r *RaceRun) params() race.StartParams {
	return race.StartParams{
		Prompt:        r.Prompt,
		Selections:    r.Selections,
		Config:        r.Config,
		APIKeys:       r.APIKeys,
		ReducedMotion: !r.Countdown,
	}
}

// run races every lane, showing chunk progress on stderr.
func (r *RaceRun) run(ctx context.Context, gen race.Generator, log *logger.Logger, progress io.Writer) (RaceResult, error) {
	orch := race.New(gen, race.WithLogger(log))

	// One bar step per streamed chunk; the total is unknown up front.
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(fmt.Sprintf("Racing %d lanes", len(r.Selections))),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	defer func() { _ = bar.Close() }()

	unsubscribe := orch.Subscribe(func(u race.Update) {
		switch u.Kind {
		case race.UpdateCountdown:
			bar.Describe(fmt.Sprintf("Starting in %d", u.Countdown))
		case race.UpdateState:
			if u.State == race.StateRacing {
				bar.Describe(fmt.Sprintf("Racing %d lanes", len(r.Selections)))
			}
		case race.UpdateChunk:
			_ = bar.Add(1)
		case race.UpdateLane:
			if u.Lane != nil && u.Lane.Status.Terminal() {
				bar.Describe(fmt.Sprintf("%s %s", u.Lane.ID, u.Lane.Status))
			}
		}
	})
	defer unsubscribe()

	p := r.params()
	started, err := orch.Start(ctx, p)
	if err != nil {
		return RaceResult{}, err
	}
	if !started {
		return RaceResult{}, fmt.Errorf("no lane has an API key; set the provider's *_API_KEY environment variable")
	}
	<-orch.Done()
	_ = bar.Finish()
	fmt.Fprintln(progress)

	snap := orch.Snapshot()
	return RaceResult{
		Prompt:      snap.Prompt,
		Mode:        snap.Config.Mode,
		State:       snap.State,
		Lanes:       snap.Lanes,
		Leaderboard: race.BuildLeaderboard(snap.Lanes),
	}, nil
}

// printTable renders lanes and both leaderboards as Markdown tables.
func printTable(w io.Writer, result RaceResult) {
	fmt.Fprintf(w, "\nMode: %s | State: %s\n\n", result.Mode, result.State)
	fmt.Fprintln(w, "| Lane | Status | TTFT (ms) | Throughput (tokens/s) | Output Tokens | Chunks |")
	fmt.Fprintln(w, "|------|--------|-----------|-----------------------|---------------|--------|")
	for _, l := range result.Lanes {
		ttft, tput, out := "-", "-", "-"
		if m := l.Metrics; m != nil {
			if d, ok := m.TTFT(); ok {
				ttft = fmt.Sprintf("%d", d.Milliseconds())
			}
			if v, ok := m.Throughput(); ok {
				tput = fmt.Sprintf("%.2f", v)
			}
			out = fmt.Sprintf("%d", m.OutputTokens)
			if m.Synthesized {
				out += "*"
			}
		}
		status := string(l.Status)
		if l.Error != "" {
			status += ": " + l.Error
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %d |\n", l.ID, status, ttft, tput, out, l.Chunks)
	}

	printBoard(w, "Fastest first token", "ms", result.Leaderboard.FastestFirstToken)
	printBoard(w, "Highest throughput", "tokens/s", result.Leaderboard.HighestThroughput)
}

func printBoard(w io.Writer, title, unit string, entries []race.Entry) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	if len(entries) == 0 {
		fmt.Fprintln(w, "(no finished lanes)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%2d. %-40s %10.2f %s\n", e.Rank, e.LaneID, e.Value, unit)
	}
}

// printModels lists the models of each provider id.
func printModels(ctx context.Context, w io.Writer, lister interface {
	ListModels(ctx context.Context, providerID, apiKey string) ([]string, error)
}, ids []string, keys map[string]string) error {
	for _, id := range ids {
		lctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		models, err := lister.ListModels(lctx, id, keys[id])
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", id)
		for _, m := range models {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	return nil
}
