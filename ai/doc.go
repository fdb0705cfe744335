// Package ai defines the embedding provider abstraction used by the
// ingestion pipeline and the query service.
//
// The Embedder interface is implemented by ai/openai for OpenAI-compatible
// APIs (OpenAI, Ollama, LocalAI, vLLM) and by ai/mock for deterministic
// test embeddings.
package ai
