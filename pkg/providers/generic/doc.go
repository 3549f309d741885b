// Package generic implements an adapter for OpenAI-compatible endpoints such
// as Ollama, LM Studio and vLLM. It reuses the openai adapter with a required
// base URL and an optional API key.
package generic
