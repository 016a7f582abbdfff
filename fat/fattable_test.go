package fat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func testVolume(t *testing.T, totalSectors uint32) *Volume {
	t.Helper()
	storage := make([]byte, int64(totalSectors)*BytesPerSector)
	clock := FixedClock{At: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.Local)}
	vol, err := Format(bytesextra.NewReadWriteSeeker(storage), FormatOptions{TotalSectors: totalSectors, Clock: clock})
	require.NoError(t, err)
	return vol
}

func TestAllFATCopiesByteEqualAfterWrite(t *testing.T) {
	vol := testVolume(t, 1440*1024/BytesPerSector)
	require.NoError(t, CreateFile(vol, "/HELLO.TXT", strings.NewReader("hello\n"), AlwaysOverwrite{}))

	bs := vol.BootSector
	fat0Start := SectorID(bs.ReservedSectors)
	for copyIdx := uint8(1); copyIdx < bs.NumFATs; copyIdx++ {
		copyStart := fat0Start + SectorID(uint32(copyIdx)*bs.SectorsPerFAT)
		for i := uint32(0); i < bs.SectorsPerFAT; i++ {
			a, err := vol.readSector(fat0Start + SectorID(i))
			require.NoError(t, err)
			b, err := vol.readSector(copyStart + SectorID(i))
			require.NoError(t, err)
			assert.Equal(t, a, b, "FAT copy %d diverges from copy 0 at relative sector %d", copyIdx, i)
		}
	}
}

func TestFATEntryRoundTrip(t *testing.T) {
	vol := testVolume(t, 1440*1024/BytesPerSector)

	cases := []ClusterID{2, 3, 4, 5, 100, ClusterID(vol.BootSector.TotalClusters) + 1}
	for _, c := range cases {
		if uint32(c) >= vol.BootSector.TotalClusters+2 {
			continue
		}
		want := ClusterID(0x0ABC) & 0x0FFF
		require.NoError(t, vol.Table.Set(c, want))
		got, err := vol.Table.Get(c)
		require.NoError(t, err)
		assert.Equal(t, want, got, "cluster %d round-trip mismatch", c)
	}
}

func TestFAT12OddEvenIndependence(t *testing.T) {
	vol := testVolume(t, 1440*1024/BytesPerSector)
	require.NoError(t, vol.Table.Set(10, 0x0ABC))
	require.NoError(t, vol.Table.Set(11, 0x0DEF))

	got10, err := vol.Table.Get(10)
	require.NoError(t, err)
	got11, err := vol.Table.Get(11)
	require.NoError(t, err)

	assert.EqualValues(t, 0x0ABC, got10)
	assert.EqualValues(t, 0x0DEF, got11)
}

func TestAllocateReturnsNoSpaceWhenFull(t *testing.T) {
	vol := testVolume(t, 720*1024/BytesPerSector)
	var last ClusterID
	for {
		c, err := vol.Table.Allocate()
		if err != nil {
			break
		}
		last = c
	}
	assert.NotZero(t, last)

	_, err := vol.Table.Allocate()
	assert.Error(t, err)
}

func TestChainAndFreeChain(t *testing.T) {
	vol := testVolume(t, 1440*1024/BytesPerSector)
	first, err := vol.Table.Allocate()
	require.NoError(t, err)
	second, err := vol.Table.Extend(first)
	require.NoError(t, err)

	chain, err := vol.Table.Chain(first)
	require.NoError(t, err)
	assert.Equal(t, []ClusterID{first, second}, chain)

	require.NoError(t, vol.Table.FreeChain(first))
	v, err := vol.Table.Get(first)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
	v, err = vol.Table.Get(second)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}
