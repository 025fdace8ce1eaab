package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttestationRecord_IsRevoked(t *testing.T) {
	assert.False(t, AttestationRecord{RevocationTime: "0"}.IsRevoked())
	assert.False(t, AttestationRecord{RevocationTime: ""}.IsRevoked())
	assert.True(t, AttestationRecord{RevocationTime: "1700000500"}.IsRevoked())
}

func TestAttestationRecord_CreatedAtUnix(t *testing.T) {
	ts, err := AttestationRecord{TimeCreated: " 1700000100 "}.CreatedAtUnix()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000100), ts)

	_, err = AttestationRecord{TimeCreated: "yesterday"}.CreatedAtUnix()
	assert.Error(t, err)
}

func TestNormalizedProof_HasCoordinates(t *testing.T) {
	lon, lat := -74.006, 40.7128
	assert.True(t, (&NormalizedProof{Longitude: &lon, Latitude: &lat}).HasCoordinates())
	assert.False(t, (&NormalizedProof{Longitude: &lon}).HasCoordinates())
	assert.False(t, (&NormalizedProof{}).HasCoordinates())
}
