package normalizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/chain"
	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
)

// Encoded field names of the location attestation schema.
const (
	FieldEventTimestamp = "eventTimestamp"
	FieldSRS            = "srs"
	FieldLocationType   = "locationType"
	FieldLocation       = "location"
	FieldRecipeType     = "recipeType"
	FieldRecipePayload  = "recipePayload"
	FieldMediaType      = "mediaType"
	FieldMediaData      = "mediaData"
	FieldMemo           = "memo"
)

// BuildProof turns a source record into its canonical form. Any failure is a
// *chain.DecodeError scoped to this one record. A location that cannot be
// resolved is not a failure: the proof is returned without coordinates.
func BuildProof(c model.Chain, rec model.AttestationRecord, now time.Time) (*model.NormalizedProof, error) {
	fail := func(err error) error {
		return &chain.DecodeError{Chain: c.String(), UID: rec.ID, Err: err}
	}

	created, err := rec.CreatedAtUnix()
	if err != nil {
		return nil, fail(err)
	}
	fields, err := DecodeFields(rec.DecodedDataJSON)
	if err != nil {
		return nil, fail(err)
	}

	observedAt := time.Unix(created, 0).UTC()
	eventTime := observedAt
	if ts, ok := fields.Int(FieldEventTimestamp); ok && ts > 0 {
		eventTime = time.Unix(ts, 0).UTC()
	}

	p := &model.NormalizedProof{
		UID:           rec.ID,
		Chain:         c,
		Prover:        rec.Attester,
		ObservedAt:    observedAt,
		EventTime:     eventTime,
		Revoked:       rec.IsRevoked(),
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	if rec.Recipient != nil {
		p.Subject = *rec.Recipient
	}

	if p.SRS, err = fields.String(FieldSRS, model.DefaultSRS); err != nil {
		return nil, fail(err)
	}
	if p.LocationType, err = fields.String(FieldLocationType, model.DefaultLocationType); err != nil {
		return nil, fail(err)
	}
	if p.RawLocation, err = fields.String(FieldLocation, ""); err != nil {
		return nil, fail(err)
	}
	if p.RecipeTypes, err = fields.Strings(FieldRecipeType); err != nil {
		return nil, fail(err)
	}
	if p.RecipePayloads, err = fields.ByteSlices(FieldRecipePayload); err != nil {
		return nil, fail(err)
	}
	if p.MediaTypes, err = fields.Strings(FieldMediaType); err != nil {
		return nil, fail(err)
	}
	if p.MediaData, err = fields.Strings(FieldMediaData); err != nil {
		return nil, fail(err)
	}
	if p.Memo, err = fields.String(FieldMemo, ""); err != nil {
		return nil, fail(err)
	}

	if pt, ok := NormalizeLocation(p.RawLocation); ok {
		lon, lat := pt.Longitude, pt.Latitude
		p.Longitude, p.Latitude = &lon, &lat
	}
	return p, nil
}

// EncodeFields renders fields in the layout DecodeFields reads.
func EncodeFields(fields ...model.EncodedField) (string, error) {
	if fields == nil {
		fields = []model.EncodedField{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}
