package fat_test

import (
	"testing"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	bs, err := fat.Establish(fat.EstablishOptions{TotalSectors: 1440 * 1024 / fat.BytesPerSector})
	require.NoError(t, err)

	raw, err := bs.Serialize(nil)
	require.NoError(t, err)
	require.Len(t, raw, fat.BytesPerSector)
	assert.EqualValues(t, 0x55, raw[510])
	assert.EqualValues(t, 0xAA, raw[511])

	parsed, err := fat.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, bs.SizeFAT, parsed.SizeFAT)
	assert.Equal(t, bs.SectorsPerCluster, parsed.SectorsPerCluster)
	assert.Equal(t, bs.RootEntries, parsed.RootEntries)
	assert.Equal(t, bs.TotalClusters, parsed.TotalClusters)
}

func TestParseRejectsBadSignature(t *testing.T) {
	buf := make([]byte, fat.BytesPerSector)
	_, err := fat.Parse(buf)
	assert.Error(t, err)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := fat.Parse(make([]byte, 100))
	assert.Error(t, err)
}

func TestEstablishFAT32RoundTrip(t *testing.T) {
	bs, err := fat.Establish(fat.EstablishOptions{TotalSectors: 524288 * 1024 / fat.BytesPerSector})
	require.NoError(t, err)

	raw, err := bs.Serialize(nil)
	require.NoError(t, err)

	parsed, err := fat.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 32, parsed.SizeFAT)
	assert.True(t, parsed.IsFAT32())
	assert.EqualValues(t, 2, parsed.RootCluster)
}

func TestEstablishBootCodeOverlay(t *testing.T) {
	bs, err := fat.Establish(fat.EstablishOptions{TotalSectors: 1440 * 1024 / fat.BytesPerSector})
	require.NoError(t, err)

	overlay := make([]byte, fat.BytesPerSector)
	for i := range overlay {
		overlay[i] = 0x90
	}
	raw, err := bs.Serialize(overlay)
	require.NoError(t, err)

	// The BPB fields still win over the overlay at their offsets.
	assert.EqualValues(t, 0x55, raw[510])
	assert.EqualValues(t, 0xAA, raw[511])
	// Somewhere past the BPB but before the signature, the overlay's NOP
	// sled should still be visible.
	assert.EqualValues(t, 0x90, raw[100])
}
