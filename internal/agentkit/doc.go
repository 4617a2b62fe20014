// Package agentkit exposes wallet-backed onchain actions as tools an agent can
// call. Each action provider contributes a group of tools and decides which
// networks it supports.
package agentkit
