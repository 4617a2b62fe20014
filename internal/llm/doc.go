// Package llm defines the provider-neutral chat model contract used by the
// agent runner: role-tagged messages, function tool specs and tool calls.
// Provider adapters live in subpackages.
package llm
