package model

import "time"

const (
	DefaultSRS          = "WGS84"
	DefaultLocationType = "point"
)

// NormalizedProof is the canonical, persisted form of a location attestation.
// (Chain, UID) is the global key. Longitude and Latitude are both set or both nil.
type NormalizedProof struct {
	UID            string    `json:"uid"`
	Chain          Chain     `json:"chain"`
	Prover         string    `json:"prover"`
	Subject        string    `json:"subject"`
	ObservedAt     time.Time `json:"observed_at"`
	EventTime      time.Time `json:"event_time"`
	SRS            string    `json:"srs"`
	LocationType   string    `json:"location_type"`
	RawLocation    string    `json:"raw_location"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	RecipeTypes    []string  `json:"recipe_types"`
	RecipePayloads [][]byte  `json:"recipe_payloads"`
	MediaTypes     []string  `json:"media_types"`
	MediaData      []string  `json:"media_data"`
	Memo           string    `json:"memo"`
	Revoked        bool      `json:"revoked"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// HasCoordinates reports whether geometry normalization produced a point.
func (p *NormalizedProof) HasCoordinates() bool {
	return p.Longitude != nil && p.Latitude != nil
}
