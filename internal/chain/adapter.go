package chain

import (
	"context"
	"fmt"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks . SourceClient

// DefaultRevokedPageSize caps FetchRevokedIDs to a single page.
const DefaultRevokedPageSize = 100

// SourceClient abstracts one chain's attestation indexer so the pipeline core
// stays chain-agnostic. One instance serves exactly one chain and schema.
type SourceClient interface {
	// Chain returns the chain identifier (e.g., "sepolia", "base").
	Chain() string

	// SchemaID returns the schema identifier records are filtered by.
	SchemaID() string

	// FetchWindow returns up to limit records created strictly after
	// sinceExclusiveUnix, oldest first.
	FetchWindow(ctx context.Context, sinceExclusiveUnix int64, limit int) ([]model.AttestationRecord, error)

	// RevokedPageSize is the most ids one FetchRevokedIDs call returns.
	RevokedPageSize() int

	// FetchRevokedIDs returns one page of ids the source reports as revoked.
	FetchRevokedIDs(ctx context.Context, schemaID string) ([]string, error)

	// CheckRevocationStatus returns the subset of ids currently revoked.
	CheckRevocationStatus(ctx context.Context, ids []string) ([]string, error)
}

// DecodeError marks a response or record that does not match the expected
// schema. Retrying will not help.
type DecodeError struct {
	Chain string
	UID   string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("decode %s response: %v", e.Chain, e.Err)
	}
	return fmt.Sprintf("decode %s record %s: %v", e.Chain, e.UID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError is a non-200 answer from a source's HTTP endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}
