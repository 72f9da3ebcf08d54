// Package modelstream provides the model transport for the agent: submit a
// conversation history plus a system prompt and receive a lazy, finite
// sequence of incremental text deltas.
//
// The package wraps gollm to present a provider-agnostic streaming
// interface. Providers that do not support token streaming fall back to a
// blocking generation surfaced as a single delta. Transport failures
// (network, authentication, rate limiting) are classified into a typed
// error hierarchy so callers can distinguish retryable conditions from
// fatal ones.
package modelstream
