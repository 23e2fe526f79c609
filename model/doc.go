// Package model defines the provider-agnostic abstractions for interacting
// with language models.
//
// Core pieces:
//   - Model unifies streaming and non-streaming generation behind one interface
//   - Provider is the closed set of supported backends and Factory maps each
//     kind to a constructor
//   - Breaker and Limited wrap any Model with a circuit breaker or a rate
//     limit
//   - MockModel scripts responses (text and tool calls) for tests
//
// Vendor adapters live in the openai and anthropic subpackages.
package model
