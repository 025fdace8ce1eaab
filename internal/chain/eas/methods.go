package eas

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
)

const attestationsQuery = `query Attestations($where: AttestationWhereInput, $take: Int, $orderBy: [AttestationOrderByWithRelationInput!]) {
  attestations(where: $where, take: $take, orderBy: $orderBy) {
    id
    attester
    recipient
    revocationTime
    timeCreated
    decodedDataJson
    revoked
  }
}`

func (c *Client) QueryAttestations(ctx context.Context, where map[string]any, take int, orderBy []map[string]string) ([]Attestation, error) {
	vars := map[string]any{"where": where, "take": take}
	if len(orderBy) > 0 {
		vars["orderBy"] = orderBy
	}
	data, err := c.call(ctx, attestationsQuery, vars)
	if err != nil {
		return nil, err
	}

	var out attestationsData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &chain.DecodeError{Chain: c.chain, Err: fmt.Errorf("unmarshal attestations: %w", err)}
	}
	if out.Attestations == nil {
		return nil, &chain.DecodeError{Chain: c.chain, Err: fmt.Errorf("response has no attestations field")}
	}
	for i, a := range *out.Attestations {
		if a.ID == "" {
			return nil, &chain.DecodeError{Chain: c.chain, Err: fmt.Errorf("attestation %d has no id", i)}
		}
	}
	return *out.Attestations, nil
}
