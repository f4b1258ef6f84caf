// Package advisor implements the AdvisorGateway: priority-ordered
// failover across multiple LLM providers, per-key rate limiting,
// response caching, and provider-key encryption at rest.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
	"github.com/atlas-desktop/trading-orchestrator/pkg/utils"
)

const (
	maxAttempts      = 3
	callTimeout      = 10 * time.Second
	defaultKeyCooldown = 60 * time.Second
	backoffBase      = 4 * time.Second
	backoffMax       = 10 * time.Second
)

// Recommendation is one parsed, validated item from an advisor response.
type Recommendation struct {
	Symbol      string   `json:"symbol"`
	Decision    string   `json:"decision"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning,omitempty"`
	PriceTarget *float64 `json:"price_target,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
}

type rawRecommendation struct {
	Symbol      string   `json:"symbol"`
	Decision    string   `json:"decision"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning,omitempty"`
	PriceTarget *float64 `json:"price_target,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
}

type recommendationBatch struct {
	Recommendations []json.RawMessage `json:"recommendations"`
}

// Provider is one advisory LLM endpoint with an ordered set of keys.
type Provider struct {
	Name    string
	BaseURL string
	Model   string

	mu   sync.Mutex
	keys []*types.ProviderKey
}

// Gateway routes prompts to the first healthy provider in priority order.
type Gateway struct {
	logger *zap.Logger
	rnd    *rand.Rand

	mu        sync.Mutex
	providers []*Provider

	limiter  *rate.Limiter
	cache    *cache.Cache
	http     *resty.Client
	master   [32]byte
	metrics  *metrics.Registry
}

// WithMetrics attaches a metrics.Registry the gateway instruments on
// every provider failover. Returns the same Gateway for chaining.
func (g *Gateway) WithMetrics(m *metrics.Registry) *Gateway {
	g.metrics = m
	return g
}

// NewGateway builds a Gateway with the given provider priority order,
// a global call-rate limit (calls/minute), a response cache TTL, and the
// process-wide master key used to decrypt provider secrets.
func NewGateway(logger *zap.Logger, providers []*Provider, callsPerMinute int, cacheTTL time.Duration, masterKey [32]byte, rnd *rand.Rand) *Gateway {
	return &Gateway{
		logger:    logger.Named("advisor-gateway"),
		rnd:       rnd,
		providers: providers,
		limiter:   rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
		cache:     cache.New(cacheTTL, cacheTTL),
		http:      resty.New().SetTimeout(callTimeout),
		master:    masterKey,
	}
}

// AddProviderKey registers an encrypted key for the named provider.
func (g *Gateway) AddProviderKey(providerName string, key *types.ProviderKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.providers {
		if p.Name == providerName {
			p.mu.Lock()
			p.keys = append(p.keys, key)
			p.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("advisor: unknown provider %q", providerName)
}

// KeyStats returns a read-only snapshot of every registered key's
// rotation bookkeeping (error count, last used, rate-limit expiry),
// keyed by provider name, for status reporting.
func (g *Gateway) KeyStats() map[string][]types.ProviderKey {
	g.mu.Lock()
	providers := make([]*Provider, len(g.providers))
	copy(providers, g.providers)
	g.mu.Unlock()

	out := make(map[string][]types.ProviderKey, len(providers))
	for _, p := range providers {
		p.mu.Lock()
		keys := make([]types.ProviderKey, len(p.keys))
		for i, k := range p.keys {
			keys[i] = *k
		}
		p.mu.Unlock()
		out[p.Name] = keys
	}
	return out
}

// Complete sends prompt to the first healthy provider in priority order,
// optionally pinning preferred first, and returns the raw assistant
// content. Results are cached by prompt hash for the gateway's TTL.
func (g *Gateway) Complete(ctx context.Context, prompt string, preferred string) (string, error) {
	cacheKey := utils.HashPrompt(prompt)
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.(string), nil
	}

	order := g.activeOrder(preferred)

	var lastErr error
	for _, provider := range order {
		key := g.selectKey(provider)
		if key == nil {
			continue
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
		}

		content, err := g.attempt(ctx, provider, key, prompt)
		if err != nil {
			lastErr = err
			key.ErrorCount++
			key.RateLimitedUntil = time.Now().Add(defaultKeyCooldown)
			g.logger.Warn("advisor provider failed, trying next",
				zap.String("provider", provider.Name), zap.Error(err))
			if g.metrics != nil {
				g.metrics.ProviderFailovers.WithLabelValues(provider.Name).Inc()
			}
			continue
		}

		key.LastUsed = time.Now()
		g.cache.SetDefault(cacheKey, content)
		return content, nil
	}

	if lastErr == nil {
		lastErr = types.ErrProviderExhausted
	}
	return "", fmt.Errorf("%w: %v", types.ErrProviderExhausted, lastErr)
}

// activeOrder returns providers with `preferred` moved to the front, if set.
func (g *Gateway) activeOrder(preferred string) []*Provider {
	g.mu.Lock()
	defer g.mu.Unlock()

	if preferred == "" {
		out := make([]*Provider, len(g.providers))
		copy(out, g.providers)
		return out
	}

	ordered := make([]*Provider, 0, len(g.providers))
	var pinned *Provider
	for _, p := range g.providers {
		if p.Name == preferred {
			pinned = p
			continue
		}
		ordered = append(ordered, p)
	}
	if pinned != nil {
		ordered = append([]*Provider{pinned}, ordered...)
	}
	return ordered
}

// selectKey shuffles a provider's keys and returns the first available one.
func (g *Gateway) selectKey(p *Provider) *types.ProviderKey {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return nil
	}
	shuffled := make([]*types.ProviderKey, len(p.keys))
	copy(shuffled, p.keys)
	g.rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	now := time.Now()
	for _, k := range shuffled {
		if k.Available(now) {
			return k
		}
	}
	return nil
}

func (g *Gateway) attempt(ctx context.Context, p *Provider, key *types.ProviderKey, prompt string) (string, error) {
	secret, err := decryptSecret(g.master, key)
	if err != nil {
		return "", err
	}

	var content string
	var err2 error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		content, err2 = g.callOnce(ctx, p, secret, prompt)
		if err2 == nil {
			return content, nil
		}
		if attempt < maxAttempts-1 {
			delay := backoffBase + time.Duration(g.rnd.Int63n(int64(backoffMax-backoffBase)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", err2
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *Gateway) callOnce(ctx context.Context, p *Provider, secret, prompt string) (string, error) {
	body := chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a disciplined trading analyst. Respond only with the requested JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	}

	var parsed chatResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+secret).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		Post(p.BaseURL + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrBrokerTransient, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: provider %s returned status %d", types.ErrProviderRateLimited, p.Name, resp.StatusCode())
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices from %s", types.ErrInvalidAdvisorResponse, p.Name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// ParseRecommendations extracts and validates the recommendations array
// from raw advisor content. Items missing symbol, decision, or confidence
// are dropped individually rather than rejecting the whole batch.
func ParseRecommendations(content string) ([]Recommendation, error) {
	var batch recommendationBatch
	if err := json.Unmarshal([]byte(content), &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidAdvisorResponse, err)
	}

	out := make([]Recommendation, 0, len(batch.Recommendations))
	for _, raw := range batch.Recommendations {
		var rec rawRecommendation
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.Symbol == "" || rec.Decision == "" || rec.Confidence == nil {
			continue
		}
		out = append(out, Recommendation{
			Symbol:      rec.Symbol,
			Decision:    rec.Decision,
			Confidence:  *rec.Confidence,
			Reasoning:   rec.Reasoning,
			PriceTarget: rec.PriceTarget,
			Quantity:    rec.Quantity,
		})
	}
	return out, nil
}
