package provider

import (
	"sort"
	"strings"

	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/tokenizer"
)

// RouterConfig holds the routing policy knobs. Values come straight from
// configuration; the router never hard-codes thresholds.
type RouterConfig struct {
	// ComplexTokenThreshold is the query token count at which a request
	// stops counting as greeting-like.
	ComplexTokenThreshold int
	// ComplexKeywords force complex classification when present.
	ComplexKeywords []string
}

// Router selects the ordered provider list for a request. Selection is
// deterministic given identical inputs and configuration.
type Router struct {
	cheap  []domain.ProviderProfile
	strong []domain.ProviderProfile
	cfg    RouterConfig
}

// NewRouter builds a router over the configured tiers. Each tier is sorted
// cheapest-first, ties broken by provider then model ID for determinism.
func NewRouter(cheap, strong []domain.ProviderProfile, cfg RouterConfig) *Router {
	return &Router{
		cheap:  sortTier(cheap),
		strong: sortTier(strong),
		cfg:    cfg,
	}
}

func sortTier(tier []domain.ProviderProfile) []domain.ProviderProfile {
	out := make([]domain.ProviderProfile, len(tier))
	copy(out, tier)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CostPerToken() != out[j].CostPerToken() {
			return out[i].CostPerToken() < out[j].CostPerToken()
		}
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// Classify derives a complexity hint from the query text: token count plus
// presence of domain keywords. Callers with a prior intent classification can
// pass their own hint to Select instead.
func (r *Router) Classify(queryText string) domain.ComplexityHint {
	if tokenizer.Estimate(queryText) >= r.cfg.ComplexTokenThreshold {
		return domain.ComplexityComplex
	}
	lower := strings.ToLower(queryText)
	for _, kw := range r.cfg.ComplexKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return domain.ComplexityComplex
		}
	}
	return domain.ComplexitySimple
}

// Select returns the ordered provider profiles to attempt for a request.
// Simple requests with a cost preference start on the cheap tier; complex or
// quality-preferring requests start on the strong tier. The other tier is
// appended so the fallback chain can always exhaust every capable profile.
func (r *Router) Select(kind domain.RequestKind, hint domain.ComplexityHint, pref domain.CostPreference) []domain.ProviderProfile {
	var first, second []domain.ProviderProfile
	if hint == domain.ComplexityComplex || pref == domain.CostPreferenceFavorQuality {
		first, second = r.strong, r.cheap
	} else {
		first, second = r.cheap, r.strong
	}

	out := make([]domain.ProviderProfile, 0, len(first)+len(second))
	seen := make(map[string]struct{})
	appendTier := func(tier []domain.ProviderProfile) {
		for _, p := range tier {
			if kind == domain.RequestKindEmbedding && !p.SupportsEmbeddings {
				continue
			}
			key := p.ProviderID + ":" + p.ModelID
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, p)
		}
	}
	appendTier(first)
	appendTier(second)
	return out
}
