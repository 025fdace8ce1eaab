package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AttestationRecord is one attestation as returned by a source indexer. It only
// lives between a fetch and its transformation into a NormalizedProof.
type AttestationRecord struct {
	ID             string
	Attester       string
	Recipient      *string
	RevocationTime string // unix seconds as a numeral, "0" when not revoked
	TimeCreated    string // unix seconds as a numeral
	// DecodedDataJSON is the source's ordered list of name/type/value triples.
	DecodedDataJSON string
}

// EncodedField is a single decoded schema field.
type EncodedField struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// IsRevoked reports whether the source marked the attestation revoked.
func (r AttestationRecord) IsRevoked() bool {
	v := strings.TrimSpace(r.RevocationTime)
	return v != "" && v != "0"
}

// CreatedAtUnix parses TimeCreated.
func (r AttestationRecord) CreatedAtUnix() (int64, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(r.TimeCreated), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse time created %q: %w", r.TimeCreated, err)
	}
	return ts, nil
}
