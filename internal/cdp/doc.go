// Package cdp is a small client for the Coinbase Developer Platform v2 EVM
// account API: server managed accounts, the testnet faucet and transaction
// signing. Requests carry a short lived ES256/EdDSA bearer token and, where
// the API demands it, a wallet auth token.
package cdp
