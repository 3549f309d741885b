// Package costs provides approximate cost estimation for provider calls.
//
// A call's token count is split into input and output tokens by a fixed
// input ratio and priced against a per-provider table expressed in USD per
// 1000 tokens:
//
//	input  = round(tokens * input_ratio)
//	output = tokens - input
//	cost   = input/1000 * input_per_1k + output/1000 * output_per_1k
//
// Providers without an entry are priced with the "default" entry. When the
// provider reports a real prompt/completion split, CalculateUsage prices that
// split directly instead.
//
// # Usage
//
//	calculator := costs.NewCalculator(&cfg.Costs)
//	est := calculator.Estimate("openai-primary", 1200)
//	fmt.Printf("Estimated cost: $%.6f\n", est.TotalCost)
//
// # Pricing Updates
//
// UpdatePricing swaps the table atomically so configuration reloads take
// effect without restarting.
package costs
