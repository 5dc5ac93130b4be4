package provider

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/groundline/groundline/internal/domain"
)

// ChainConfig controls the fallback chain's attempt behavior.
type ChainConfig struct {
	// ProviderTimeout is the per-attempt deadline.
	ProviderTimeout time.Duration
	// MaxRetries caps backoff retries for transient errors on one provider
	// before the chain advances.
	MaxRetries int
	// CooldownWindow is how long a provider is skipped after a credential
	// error.
	CooldownWindow time.Duration
}

// Chain tries providers in order until one returns a valid result. Transient
// failures are retried with exponential backoff; credential failures put the
// provider into a process-wide cool-down.
type Chain struct {
	registry *Registry
	cost     *CostTracker
	cfg      ChainConfig

	mu        sync.Mutex
	cooldowns map[string]time.Time
}

func NewChain(registry *Registry, cost *CostTracker, cfg ChainConfig) *Chain {
	return &Chain{
		registry:  registry,
		cost:      cost,
		cfg:       cfg,
		cooldowns: make(map[string]time.Time),
	}
}

// Generate runs req against the ordered profiles. Cost is recorded exactly
// once per successful attempt, never on cancellation.
func (c *Chain) Generate(ctx context.Context, req domain.GenerationRequest, profiles []domain.ProviderProfile) (*domain.GenerationResult, error) {
	var attempts []domain.ProviderAttempt

	for _, profile := range profiles {
		if c.coolingDown(profile.ProviderID) {
			attempts = append(attempts, domain.ProviderAttempt{
				ProviderID: profile.ProviderID,
				ModelID:    profile.ModelID,
				Err:        errors.New("provider in cool-down"),
			})
			continue
		}

		p := c.registry.Get(profile.ProviderID)
		if p == nil {
			attempts = append(attempts, domain.ProviderAttempt{
				ProviderID: profile.ProviderID,
				ModelID:    profile.ModelID,
				Err:        errors.New("provider not configured"),
			})
			continue
		}

		result, err := c.attempt(ctx, p, req, profile.ModelID)
		if err == nil {
			if ctx.Err() == nil && c.cost != nil {
				c.cost.Record(CostEntry{
					ProviderID:     result.ProviderID,
					ModelID:        result.ModelID,
					TokensIn:       result.TokensIn,
					TokensOut:      result.TokensOut,
					ConversationID: req.ConversationID,
				})
			}
			return result, nil
		}

		perr := AsError(profile.ProviderID, err)
		if perr.Kind == KindAuth {
			c.startCooldown(profile.ProviderID)
		}
		attempts = append(attempts, domain.ProviderAttempt{
			ProviderID: profile.ProviderID,
			ModelID:    profile.ModelID,
			Err:        perr,
		})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &domain.AllProvidersFailedError{Attempts: attempts}
}

// Embed runs an embedding request through the chain. Profiles without
// embedding support should already be filtered out by the router. Cost is
// recorded exactly once per successful attempt, never on cancellation.
func (c *Chain) Embed(ctx context.Context, texts []string, profiles []domain.ProviderProfile) ([][]float32, string, error) {
	var attempts []domain.ProviderAttempt

	for _, profile := range profiles {
		if c.coolingDown(profile.ProviderID) {
			attempts = append(attempts, domain.ProviderAttempt{
				ProviderID: profile.ProviderID,
				ModelID:    profile.ModelID,
				Err:        errors.New("provider in cool-down"),
			})
			continue
		}

		p := c.registry.Get(profile.ProviderID)
		if p == nil {
			attempts = append(attempts, domain.ProviderAttempt{
				ProviderID: profile.ProviderID,
				ModelID:    profile.ModelID,
				Err:        errors.New("provider not configured"),
			})
			continue
		}

		var result *domain.EmbeddingResult
		err := c.retryTransient(ctx, profile.ProviderID, func(callCtx context.Context) error {
			var embedErr error
			result, embedErr = p.Embed(callCtx, texts, profile.ModelID)
			return embedErr
		})
		if err == nil {
			if ctx.Err() == nil && c.cost != nil {
				c.cost.Record(CostEntry{
					ProviderID: profile.ProviderID,
					ModelID:    profile.ModelID,
					TokensIn:   result.TokensIn,
				})
			}
			return result.Vectors, profile.ModelID, nil
		}

		perr := AsError(profile.ProviderID, err)
		if perr.Kind == KindAuth {
			c.startCooldown(profile.ProviderID)
		}
		attempts = append(attempts, domain.ProviderAttempt{
			ProviderID: profile.ProviderID,
			ModelID:    profile.ModelID,
			Err:        perr,
		})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", &domain.AllProvidersFailedError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, p Provider, req domain.GenerationRequest, modelID string) (*domain.GenerationResult, error) {
	var result *domain.GenerationResult
	err := c.retryTransient(ctx, p.ID(), func(callCtx context.Context) error {
		r, genErr := p.Generate(callCtx, req, modelID)
		if genErr != nil {
			return genErr
		}
		if validErr := validateResult(p.ID(), r, req.MinLength); validErr != nil {
			return validErr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryTransient runs op with a per-call deadline, retrying transient
// failures with exponential backoff up to MaxRetries. Non-transient failures
// abort immediately.
func (c *Chain) retryTransient(ctx context.Context, providerID string, op func(context.Context) error) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)),
		ctx,
	)

	return backoff.Retry(func() error {
		callCtx := ctx
		if c.cfg.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.ProviderTimeout)
			defer cancel()
		}

		err := op(callCtx)
		if err == nil {
			return nil
		}
		perr := AsError(providerID, err)
		if perr.Transient() && ctx.Err() == nil {
			return perr
		}
		return backoff.Permanent(perr)
	}, bo)
}

// validateResult applies the basic validity checks from the chain contract:
// an empty or truncated response counts as a failed attempt.
func validateResult(providerID string, r *domain.GenerationResult, minLength int) error {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return newError(KindInvalidResponse, providerID, errors.New("empty response"))
	}
	if minLength > 0 && len(text) < minLength {
		return newError(KindInvalidResponse, providerID, errors.New("response shorter than minimum length"))
	}
	return nil
}

func (c *Chain) coolingDown(providerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.cooldowns[providerID]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.cooldowns, providerID)
		return false
	}
	return true
}

// startCooldown marks a provider unusable for the configured window. A
// failure arriving while a window is already open does not extend it.
func (c *Chain) startCooldown(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if until, ok := c.cooldowns[providerID]; ok && time.Now().Before(until) {
		return
	}
	c.cooldowns[providerID] = time.Now().Add(c.cfg.CooldownWindow)
	log.Printf("provider %s entering cool-down for %s", providerID, c.cfg.CooldownWindow)
}
