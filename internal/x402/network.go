package x402

import "fmt"

// Family classifies a network identifier into a ledger family. The choice is
// closed: a network either resolves to one of the two families or is rejected.
type Family string

const (
	// FamilyEVM covers EVM-compatible networks settled via ERC-3009 authorizations.
	FamilyEVM Family = "evm"
	// FamilySVM covers Solana-style networks.
	FamilySVM Family = "svm"
)

var evmNetworks = map[string]struct{}{
	"polygon-amoy":   {},
	"polygon":        {},
	"base-sepolia":   {},
	"base":           {},
	"avalanche-fuji": {},
}

var svmNetworks = map[string]struct{}{
	"solana-devnet": {},
	"solana":        {},
}

// ResolveFamily maps a network identifier onto its family. Unrecognized
// networks are an error, never a silent default.
func ResolveFamily(network string) (Family, error) {
	if _, ok := evmNetworks[network]; ok {
		return FamilyEVM, nil
	}
	if _, ok := svmNetworks[network]; ok {
		return FamilySVM, nil
	}
	return "", fmt.Errorf("unsupported network %q", network)
}

// USDC deployments per supported network.
var assetByNetwork = map[string]string{
	"polygon-amoy":  "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
	"base-sepolia":  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"base":          "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
	"solana-devnet": "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
	"solana":        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
}

// AssetForNetwork returns the settlement asset advertised in payment
// requirements for a resource's network. Networks without a known deployment
// fall back to the polygon-amoy USDC contract.
func AssetForNetwork(network string) string {
	if asset, ok := assetByNetwork[network]; ok {
		return asset
	}
	return assetByNetwork["polygon-amoy"]
}
