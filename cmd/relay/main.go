// Relay routes conversational messages across a priority-ordered set of AI
// providers, falling back when a provider is unhealthy, rate limited by its
// circuit breaker, or failing.
//
// Usage:
//
//	# Start the HTTP server
//	relay serve --config relay.yaml
//
//	# Send one message from the command line
//	relay chat --session demo "What is a circuit breaker?"
//
//	# Show provider state, probing health first
//	relay providers --probe
//
//	# Inspect dispatch records from the last day
//	relay records --since 24h --outcome exhausted
//
//	# Check a configuration file
//	relay validate --config relay.yaml
package main

func main() {
	Execute()
}
