package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupFloppyGeometryKnownSizes(t *testing.T) {
	g, ok := lookupFloppyGeometry(2880)
	assert.True(t, ok)
	assert.EqualValues(t, 1, g.SectorsPerCluster)
	assert.EqualValues(t, 224, g.RootEntries)
	assert.EqualValues(t, 0xF0, g.MediaDescriptor)
	assert.EqualValues(t, 18, g.SectorsPerTrack)
	assert.EqualValues(t, 2, g.Heads)
}

func TestLookupFloppyGeometryUnknownSize(t *testing.T) {
	_, ok := lookupFloppyGeometry(999999)
	assert.False(t, ok)
}
