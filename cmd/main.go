package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"llmrace/internal/completion"
	"llmrace/internal/config"
	"llmrace/internal/logger"
	"llmrace/internal/provider"
	"llmrace/internal/race"
)

const (
	defaultPrompt = "Write a short story about a race between a tortoise and a hare."
)

func main() {
	lanes := pflag.StringP("lanes", "l", "", "Comma-separated provider:model lanes, e.g. openai:gpt-4o-mini,groq:llama-3.1-8b-instant")
	prompt := pflag.StringP("prompt", "p", defaultPrompt, "Prompt sent to every lane")
	mode := pflag.StringP("mode", "m", string(race.ModeDrag), "Race mode: drag, token_limit, time_limit or free_for_all")
	tokenLimit := pflag.Int("token-limit", 0, "Tokens per lane in token_limit mode")
	timeLimit := pflag.Float64("time-limit", 0, "Seconds per race in time_limit mode")
	temperature := pflag.Float64("temperature", provider.DefaultTemperature, "Sampling temperature")
	maxTokens := pflag.IntP("max-tokens", "t", provider.DefaultMaxTokens, "Maximum number of tokens to generate")
	topP := pflag.Float64("top-p", provider.DefaultTopP, "Nucleus sampling probability")
	effort := pflag.String("reasoning-effort", "", "Reasoning effort for reasoning models: low, medium or high")
	noReasoning := pflag.StringSlice("no-reasoning", nil, "Model ids that never receive a reasoning effort")
	countdown := pflag.Bool("countdown", false, "Count down before the race starts")
	listModels := pflag.Bool("list-models", false, "List models of the providers in --lanes (or all providers) and exit")
	format := pflag.StringP("format", "f", "", "Output format: json, yaml or csv (default: table)")
	help := pflag.BoolP("help", "h", false, "Show this help message")
	insecureSkipTLSVerify := pflag.Bool("insecure-skip-tls-verify", false, "Skip TLS certificate verification. Use with caution, this is insecure.")
	pflag.Parse()

	if *help {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(0)
	}

	// Keep stdout clean for formatted output.
	logs := logger.New(logger.Config{Level: logLevel(), Stdout: os.Stderr, Stderr: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	httpClient := http.DefaultClient
	if *insecureSkipTLSVerify {
		fmt.Fprintln(os.Stderr, "\n/!\\ WARNING: Skipping TLS certificate verification. This is insecure and should not be used in production. /!\\")

		defaultTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			log.Fatalf("http.DefaultTransport is not an *http.Transport")
		}
		tr := defaultTransport.Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		httpClient = &http.Client{Transport: tr}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if vcap := os.Getenv("VCAP_SERVICES"); vcap != "" {
		specs, err := (&config.Bindings{Client: httpClient, Log: logs}).Discover(ctx, vcap)
		if err == nil {
			err = cfg.AddCustom(specs...)
		}
		if err != nil {
			log.Fatalf("Invalid VCAP_SERVICES: %v", err)
		}
	}

	registry, err := cfg.Registry(httpClient, logs)
	if err != nil {
		log.Fatalf("Error building providers: %v", err)
	}
	client := completion.NewClient(registry, logs)

	var selections []race.Selection
	if *lanes != "" {
		if selections, err = parseSelections(*lanes); err != nil {
			log.Fatalf("Invalid lanes: %v", err)
		}
	}

	if *listModels {
		ids := registry.IDs()
		if len(selections) > 0 {
			ids = providerIDs(selections)
		}
		if err := printModels(ctx, os.Stdout, client, ids, cfg.ResolveKeys(nil, ids)); err != nil {
			log.Fatalf("Error listing models: %v", err)
		}
		return
	}

	if len(selections) == 0 {
		log.Fatalf("--lanes is required")
	}

	run := RaceRun{
		Prompt:     *prompt,
		Selections: selections,
		Config: race.Config{
			Mode:       race.Mode(*mode),
			TokenLimit: *tokenLimit,
			TimeLimit:  *timeLimit,
			ModelSettings: provider.ModelSettings{
				Temperature:     *temperature,
				MaxTokens:       *maxTokens,
				TopP:            *topP,
				ReasoningEffort: provider.ReasoningEffort(strings.ToLower(*effort)),
			},
			ReasoningExcluded: *noReasoning,
		},
		APIKeys:   cfg.ResolveKeys(nil, providerIDs(selections)),
		Countdown: *countdown,
	}

	result, err := run.run(ctx, client, logs, os.Stderr)
	if err != nil {
		log.Fatalf("Error running race: %v", err)
	}

	var output string
	switch *format {
	case "":
		printTable(os.Stdout, result)
		return
	case "json":
		output, err = result.Json()
	case "yaml":
		output, err = result.Yaml()
	case "csv":
		output, err = result.Csv()
	default:
		log.Fatalf("Invalid format %q", *format)
	}
	if err != nil {
		log.Fatalf("Error formatting race result: %v", err)
	}
	fmt.Println(output)
}

func providerIDs(selections []race.Selection) []string {
	seen := map[string]bool{}
	var ids []string
	for _, s := range selections {
		if !seen[s.ProviderID] {
			seen[s.ProviderID] = true
			ids = append(ids, s.ProviderID)
		}
	}
	return ids
}

func logLevel() logger.LogLevel {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		return logger.ParseLevel(v)
	}
	return logger.WARN
}
