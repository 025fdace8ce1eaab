package eas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
)

type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// QueryError carries the errors array of a GraphQL response.
type QueryError struct {
	Errors []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Numeral is an integer the indexer may send as a JSON number or a string.
type Numeral string

func (n *Numeral) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeral(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("numeral: %w", err)
	}
	*n = Numeral(num.String())
	return nil
}

type Attestation struct {
	ID              string  `json:"id"`
	Attester        string  `json:"attester"`
	Recipient       *string `json:"recipient"`
	RevocationTime  Numeral `json:"revocationTime"`
	TimeCreated     Numeral `json:"timeCreated"`
	DecodedDataJSON string  `json:"decodedDataJson"`
	Revoked         bool    `json:"revoked"`
}

func (a Attestation) toRecord() model.AttestationRecord {
	revocation := string(a.RevocationTime)
	if revocation == "" {
		revocation = "0"
	}
	return model.AttestationRecord{
		ID:              a.ID,
		Attester:        a.Attester,
		Recipient:       a.Recipient,
		RevocationTime:  revocation,
		TimeCreated:     string(a.TimeCreated),
		DecodedDataJSON: a.DecodedDataJSON,
	}
}

type attestationsData struct {
	Attestations *[]Attestation `json:"attestations"`
}
