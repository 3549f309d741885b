// Package tokens provides approximate token counting.
//
// Counts are derived from text length divided by a configurable
// characters-per-token ratio rather than a real tokenizer. The figures feed
// cost estimates and context window trimming, neither of which needs exact
// counts:
//
//   - English prose: ~4 characters per token
//   - Code and non-Latin scripts: fewer characters per token
//
// When a provider reports its own usage, callers should prefer it.
//
// # Usage
//
//	estimator := tokens.NewEstimator(&cfg.Tokens)
//	n := estimator.EstimateText("How are you?") // 3
package tokens
