package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"llmrace/internal/completion"
	"llmrace/internal/logger"
)

// DefaultModelCacheTTL is how long a provider's model list is reused.
const DefaultModelCacheTTL = 5 * time.Minute

// maxConcurrentDiscovery bounds parallel model listing calls.
const maxConcurrentDiscovery = 4

type cachedModels struct {
	models    []string
	timestamp time.Time
}

// ModelDiscovery lists provider models and caches them per provider and
// API key. Keys are stored only as a digest.
type ModelDiscovery struct {
	client *completion.Client
	keyFor func(providerID string) string
	log    *logger.Logger
	ttl    time.Duration
	now    func() time.Time
	cache  *xsync.Map[string, cachedModels]
}

// NewModelDiscovery creates a discovery service. keyFor returns the
// server-side key of a provider.
func NewModelDiscovery(client *completion.Client, keyFor func(string) string, log *logger.Logger) *ModelDiscovery {
	if log == nil {
		log = logger.Discard()
	}
	return &ModelDiscovery{
		client: client,
		keyFor: keyFor,
		log:    log,
		ttl:    DefaultModelCacheTTL,
		now:    time.Now,
		cache:  xsync.NewMap[string, cachedModels](),
	}
}

func cacheKey(providerID, apiKey string) string {
	if apiKey == "" {
		return providerID + "|anonymous"
	}
	sum := sha256.Sum256([]byte(apiKey))
	return providerID + "|" + hex.EncodeToString(sum[:8])
}

// Models returns the model list of one provider. A non-empty clientKey
// replaces the server-side key.
func (d *ModelDiscovery) Models(ctx context.Context, providerID, clientKey string) (ProviderModels, error) {
	adapter, err := d.client.Adapter(providerID)
	if err != nil {
		return ProviderModels{}, err
	}

	apiKey := clientKey
	if apiKey == "" {
		apiKey = d.keyFor(providerID)
	}
	key := cacheKey(providerID, apiKey)

	if cached, ok := d.cache.Load(key); ok && d.now().Sub(cached.timestamp) < d.ttl {
		return ProviderModels{
			ProviderID: providerID,
			Name:       adapter.Name(),
			Models:     cached.models,
			Cached:     true,
			FetchedAt:  cached.timestamp,
		}, nil
	}

	models, err := d.client.ListModels(ctx, providerID, apiKey)
	if err != nil {
		return ProviderModels{}, err
	}
	now := d.now()
	d.cache.Store(key, cachedModels{models: models, timestamp: now})
	d.log.DebugWithContext(&logger.LogContext{Provider: providerID, Operation: "list_models"},
		"Discovered %d models", len(models))

	return ProviderModels{
		ProviderID: providerID,
		Name:       adapter.Name(),
		Models:     models,
		FetchedAt:  now,
	}, nil
}

// All lists every provider concurrently. Results keep registry order.
func (d *ModelDiscovery) All(ctx context.Context, clientKeys map[string]string) (ModelsResponse, error) {
	adapters := d.client.Providers()
	results := make([]ProviderModels, len(adapters))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentDiscovery)
	for i, a := range adapters {
		eg.Go(func() error {
			pm, err := d.Models(ctx, a.ID(), clientKeys[a.ID()])
			if err != nil {
				return err
			}
			results[i] = pm
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return ModelsResponse{}, err
	}

	count := 0
	for _, r := range results {
		count += len(r.Models)
	}
	return ModelsResponse{Providers: results, Count: count}, nil
}

// InvalidateModelCache clears the model discovery cache and reports how
// many entries were dropped.
func (d *ModelDiscovery) InvalidateModelCache() int {
	n := d.cache.Size()
	d.cache.Clear()
	d.log.InfoWithFields("Model discovery cache invalidated", map[string]interface{}{"entries": n})
	return n
}
