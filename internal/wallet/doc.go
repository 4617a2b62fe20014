// Package wallet persists per-network wallet metadata and defines the wallet
// provider adapter the agent tools act through.
package wallet
