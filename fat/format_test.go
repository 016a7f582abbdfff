package fat_test

import (
	"testing"
	"time"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newImage(t *testing.T, totalSectors uint32) *bytesextra.ReadWriteSeeker {
	t.Helper()
	storage := make([]byte, int64(totalSectors)*fat.BytesPerSector)
	return bytesextra.NewReadWriteSeeker(storage)
}

func fixedClock() fat.Clock {
	return fat.FixedClock{At: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.Local)}
}

func TestFormatFloppy1440(t *testing.T) {
	totalSectors := uint32(1440 * 1024 / fat.BytesPerSector)
	img := newImage(t, totalSectors)

	vol, err := fat.Format(img, fat.FormatOptions{TotalSectors: totalSectors, Clock: fixedClock()})
	require.NoError(t, err)

	assert.Equal(t, 12, vol.BootSector.SizeFAT)
	assert.EqualValues(t, 1, vol.BootSector.SectorsPerCluster)
	assert.EqualValues(t, 224, vol.BootSector.RootEntries)
	assert.EqualValues(t, 0xF0, vol.BootSector.MediaDescriptor)
	assert.EqualValues(t, 18, vol.BootSector.SectorsPerTrack)
	assert.EqualValues(t, 2, vol.BootSector.Heads)
	assert.Contains(t, []uint32{9, 10}, vol.BootSector.SectorsPerFAT)

	entry0, err := vol.Table.Get(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0xFF0, entry0)

	entry1, err := vol.Table.Get(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0xFFF, entry1)
}

func TestFormatFAT32HalfGiB(t *testing.T) {
	totalSectors := uint32(524288 * 1024 / fat.BytesPerSector)
	img := newImage(t, totalSectors)

	vol, err := fat.Format(img, fat.FormatOptions{TotalSectors: totalSectors, Clock: fixedClock()})
	require.NoError(t, err)

	assert.Equal(t, 32, vol.BootSector.SizeFAT)
	assert.EqualValues(t, 0, vol.BootSector.RootEntries)
	assert.EqualValues(t, 2, vol.BootSector.RootCluster)
	require.NotNil(t, vol.FSInfo)
}

func TestFormatRejectsClusterGap(t *testing.T) {
	// Sweep a range of floppy-adjacent sizes and confirm none land in the
	// forbidden 4085-4086 cluster bracket.
	for _, blocks := range []uint32{720, 1440, 2880, 20000, 64000} {
		totalSectors := blocks * 1024 / fat.BytesPerSector
		img := newImage(t, totalSectors)
		vol, err := fat.Format(img, fat.FormatOptions{TotalSectors: totalSectors, Clock: fixedClock()})
		require.NoError(t, err)
		assert.False(t, vol.BootSector.TotalClusters > fat.MaxClust12 && vol.BootSector.TotalClusters < fat.MinClust16,
			"blocks=%d produced forbidden cluster count %d", blocks, vol.BootSector.TotalClusters)
	}
}

func TestFormatRejectsIllegalVolumeLabel(t *testing.T) {
	totalSectors := uint32(1440 * 1024 / fat.BytesPerSector)
	img := newImage(t, totalSectors)
	_, err := fat.Format(img, fat.FormatOptions{TotalSectors: totalSectors, VolumeLabel: "bad*name", Clock: fixedClock()})
	assert.Error(t, err)
}
