// Package web3 houses blockchain connectivity utilities: network definitions
// for the EVM chains the wallet can live on and the chain access contract the
// wallet provider uses for reads, gas estimation and receipts.
package web3
