// Package redis stores wallet records in Redis so several service replicas
// can share the wallet identity of a network.
package redis
