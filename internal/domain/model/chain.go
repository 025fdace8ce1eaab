package model

import "strings"

// Chain identifies one attestation source network.
type Chain string

const (
	ChainArbitrum Chain = "arbitrum"
	ChainBase     Chain = "base"
	ChainCelo     Chain = "celo"
	ChainOptimism Chain = "optimism"
	ChainSepolia  Chain = "sepolia"
)

func (c Chain) String() string {
	return string(c)
}

// KnownChains lists the chains an attestation source can be configured for.
var KnownChains = map[Chain]bool{
	ChainArbitrum: true,
	ChainBase:     true,
	ChainCelo:     true,
	ChainOptimism: true,
	ChainSepolia:  true,
}

// ParseChain normalizes a user supplied chain name. ok is false for unknown chains.
func ParseChain(raw string) (Chain, bool) {
	c := Chain(strings.ToLower(strings.TrimSpace(raw)))
	return c, KnownChains[c]
}
