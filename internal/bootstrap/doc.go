// Package bootstrap builds the wallet-backed agent from configuration and
// keeps the current handle for the API layer. Setup is serialized so
// concurrent first requests share one initialization.
package bootstrap
