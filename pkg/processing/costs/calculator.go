package costs

import (
	"maps"
	"math"
	"sync"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

// DefaultPricingKey names the fallback price table entry.
const DefaultPricingKey = "default"

// CostEstimate contains cost calculations in USD.
type CostEstimate struct {
	// Provider is the provider name the estimate was priced for.
	Provider string `json:"provider"`

	// PricingKey is the table entry used: the provider name or "default".
	PricingKey string `json:"pricing_key"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// ModelPricing contains prices in USD per 1000 tokens.
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Calculator prices token counts per provider.
// It is thread-safe and supports hot-reload of pricing configuration.
type Calculator struct {
	mu         sync.RWMutex
	inputRatio float64
	pricing    map[string]ModelPricing
}

// NewCalculator creates a new cost calculator with the given configuration.
func NewCalculator(cfg *config.CostsConfig) *Calculator {
	c := &Calculator{}
	c.UpdatePricing(cfg)
	return c
}

// UpdatePricing replaces the price table and input ratio.
// This is thread-safe and can be called while the calculator is in use.
func (c *Calculator) UpdatePricing(cfg *config.CostsConfig) {
	ratio := config.DefaultCostsInputRatio
	pricing := map[string]ModelPricing{
		DefaultPricingKey: {InputPer1K: config.DefaultCostsPricing, OutputPer1K: config.DefaultCostsPricing},
	}

	if cfg != nil {
		if cfg.InputRatio > 0 && cfg.InputRatio <= 1 {
			ratio = cfg.InputRatio
		}
		for name, p := range cfg.Pricing {
			pricing[name] = ModelPricing{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputRatio = ratio
	c.pricing = pricing
}

// GetPricing returns the table entry for provider, falling back to the
// default entry. The returned key names the entry actually used.
func (c *Calculator) GetPricing(provider string) (ModelPricing, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.pricing[provider]; ok {
		return p, provider
	}
	return c.pricing[DefaultPricingKey], DefaultPricingKey
}

// Pricing returns a copy of the whole table.
func (c *Calculator) Pricing() map[string]ModelPricing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.pricing)
}

// InputRatio returns the assumed input share of a token count.
func (c *Calculator) InputRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inputRatio
}

// Estimate prices an approximate token count for provider, splitting it into
// input and output tokens by the configured input ratio.
func (c *Calculator) Estimate(provider string, tokens int) CostEstimate {
	if tokens < 0 {
		tokens = 0
	}
	input := int(math.Round(float64(tokens) * c.InputRatio()))
	return c.price(provider, input, tokens-input)
}

// CalculateUsage prices a provider-reported prompt/completion split.
func (c *Calculator) CalculateUsage(provider string, usage providers.TokenUsage) CostEstimate {
	return c.price(provider, max(usage.PromptTokens, 0), max(usage.CompletionTokens, 0))
}

func (c *Calculator) price(provider string, input, output int) CostEstimate {
	pricing, key := c.GetPricing(provider)

	est := CostEstimate{
		Provider:     provider,
		PricingKey:   key,
		InputTokens:  input,
		OutputTokens: output,
		InputCost:    calculateTokenCost(input, pricing.InputPer1K),
		OutputCost:   calculateTokenCost(output, pricing.OutputPer1K),
	}
	est.TotalCost = est.InputCost + est.OutputCost
	return est
}

// calculateTokenCost calculates the cost for a given number of tokens.
// costPer1K is the cost per 1000 tokens in USD.
func calculateTokenCost(tokens int, costPer1K float64) float64 {
	if tokens <= 0 {
		return 0.0
	}

	return (float64(tokens) / 1000.0) * costPer1K
}
