// Package conversation builds the bounded history window sent to providers.
//
// BuildWindow keeps the most recent stored messages, discarding the oldest
// first, until the window fits both a message count and an estimated token
// budget:
//
//	window := conversation.BuildWindow(history, 20, 3000, estimator)
//
// Placeholder replies stored when no provider was available carry no
// provider name and are left out of the window.
package conversation
