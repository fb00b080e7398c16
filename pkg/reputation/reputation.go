// Package reputation computes a trust score per package from registry
// metadata: four factor sub-scores (age, downloads, author, maintenance)
// combined into a weighted composite, plus qualitative flags. All outbound
// registry traffic flows through a process-wide token-bucket rate limit,
// and results are cached.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/depsentry/depsentry/pkg/cache"
	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations"
)

// DefaultRequestsPerSecond is the registry fetch budget shared by all
// callers of one Scorer.
const DefaultRequestsPerSecond = 10

// npmDownloadsBaseURL serves weekly download counts; the package-level
// registry document does not carry them.
const npmDownloadsBaseURL = "https://api.npmjs.org/downloads/point/last-week"

// Result is the outcome of scoring one package.
type Result struct {
	Score    float64        `json:"score"`
	Factors  Factors        `json:"factors"`
	Flags    []string       `json:"flags"`
	Metadata map[string]any `json:"metadata"`
}

// Scorer fetches registry metadata and derives reputation results.
// Safe for concurrent use; concurrent callers share the rate limit.
type Scorer struct {
	cache        *cache.Cache
	limiter      *rate.Limiter
	client       *integrations.Client
	logger       *log.Logger
	registryURL  func(eco, name string) (string, error)
	downloadsURL string
	now          func() time.Time
}

// Options configures a Scorer.
type Options struct {
	// Cache stores results under the reputation TTL; nil disables caching.
	Cache *cache.Cache
	// RequestsPerSecond throttles registry fetches (default 10).
	RequestsPerSecond float64
	// Logger defaults to log.Default().
	Logger *log.Logger
	// RegistryURL overrides metadata URL composition; defaults to the
	// registered ecosystem analyzer. Tests point this at httptest servers.
	RegistryURL func(eco, name string) (string, error)
	// NPMDownloadsBaseURL overrides the npm downloads endpoint for tests.
	NPMDownloadsBaseURL string
}

// NewScorer creates a Scorer.
func NewScorer(opts Options) *Scorer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	registryURL := opts.RegistryURL
	if registryURL == nil {
		registryURL = func(eco, name string) (string, error) {
			a, ok := ecosystem.Get(eco)
			if !ok {
				return "", fmt.Errorf("%w: %s", ecosystem.ErrUnknownEcosystem, eco)
			}
			return a.RegistryURL(name), nil
		}
	}
	downloadsURL := opts.NPMDownloadsBaseURL
	if downloadsURL == "" {
		downloadsURL = npmDownloadsBaseURL
	}
	return &Scorer{
		cache:        opts.Cache,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		client:       integrations.NewClient(integrations.NPMTimeout, nil),
		logger:       logger,
		registryURL:  registryURL,
		downloadsURL: downloadsURL,
		now:          time.Now,
	}
}

// Calculate computes the reputation result for a package, consulting the
// cache before any registry traffic. Cache failures are transparent.
func (s *Scorer) Calculate(ctx context.Context, name, version, eco string) (*Result, error) {
	key := cache.Key(fmt.Sprintf("reputation:%s:%s:%s", eco, name, version), "")
	if s.cache != nil {
		var cached Result
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	url, err := s.registryURL(eco, name)
	if err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("reputation fetch %s/%s: %w", eco, name, err)
	}

	factors := s.factors(ctx, eco, name, raw)
	result := &Result{
		Score:    factors.Composite(),
		Factors:  factors,
		Flags:    factors.Flags(),
		Metadata: raw,
	}

	if s.cache != nil {
		s.cache.Store(ctx, key, result, cache.DefaultReputationTTL)
	}
	return result, nil
}

// fetch performs one rate-limited registry request.
func (s *Scorer) fetch(ctx context.Context, url string) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := s.client.GetJSON(ctx, url, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Scorer) factors(ctx context.Context, eco, name string, raw map[string]any) Factors {
	now := s.now()
	switch eco {
	case ecosystem.NPM:
		return Factors{
			Age:         AgeScore(npmCreated(raw), now),
			Downloads:   DownloadsScore(s.npmWeeklyDownloads(ctx, name)),
			Author:      npmAuthorScore(raw),
			Maintenance: MaintenanceScore(npmModified(raw), now),
		}
	case ecosystem.PyPI:
		first, last := pypiUploadRange(raw)
		return Factors{
			Age: AgeScore(first, now),
			// The canonical PyPI JSON endpoint exposes no download counts.
			Downloads:   DownloadsScore(-1),
			Author:      pypiAuthorScore(raw),
			Maintenance: MaintenanceScore(last, now),
		}
	default:
		return Factors{Age: neutralScore, Downloads: neutralScore, Author: neutralScore, Maintenance: neutralScore}
	}
}

// npmWeeklyDownloads queries the downloads endpoint; -1 (neutral) on any
// failure so a stats outage never distorts scoring.
func (s *Scorer) npmWeeklyDownloads(ctx context.Context, name string) int64 {
	var resp struct {
		Downloads int64 `json:"downloads"`
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return -1
	}
	if err := s.client.GetJSON(ctx, s.downloadsURL+"/"+name, &resp); err != nil {
		s.logger.Debug("npm downloads unavailable", "package", name, "err", err)
		return -1
	}
	return resp.Downloads
}
