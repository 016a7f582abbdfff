package fat_test

import (
	"testing"
	"time"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func freshVolume(t *testing.T, totalSectors uint32) *fat.Volume {
	t.Helper()
	storage := make([]byte, int64(totalSectors)*fat.BytesPerSector)
	clock := fat.FixedClock{At: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.Local)}
	vol, err := fat.Format(bytesextra.NewReadWriteSeeker(storage), fat.FormatOptions{TotalSectors: totalSectors, Clock: clock})
	require.NoError(t, err)
	return vol
}

func TestMkdirNested(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)

	require.NoError(t, fat.Mkdir(vol, "/a"))
	require.NoError(t, fat.Mkdir(vol, "/a/b"))

	entriesA, err := fat.ListDirectory(vol, "/a")
	require.NoError(t, err)

	var dot, dotdot, b *fat.Dirent
	for _, e := range entriesA {
		switch e.Raw.DisplayName() {
		case ".":
			dot = e
		case "..":
			dotdot = e
		case "B":
			b = e
		}
	}
	require.NotNil(t, dot)
	require.NotNil(t, dotdot)
	require.NotNil(t, b)
	assert.True(t, b.Raw.IsDirectory())

	aEntry, err := fat.ResolvePath(vol, "/a")
	require.NoError(t, err)
	assert.Equal(t, aEntry.Raw.FirstCluster(), dot.Raw.FirstCluster())

	entriesB, err := fat.ListDirectory(vol, "/a/b")
	require.NoError(t, err)
	var bDotDot *fat.Dirent
	for _, e := range entriesB {
		if e.Raw.DisplayName() == ".." {
			bDotDot = e
		}
	}
	require.NotNil(t, bDotDot)
	assert.Equal(t, aEntry.Raw.FirstCluster(), bDotDot.Raw.FirstCluster())
}

func TestMkdirRejectsDuplicate(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	require.NoError(t, fat.Mkdir(vol, "/a"))
	err := fat.Mkdir(vol, "/a")
	assert.Error(t, err)
}

func TestResolvePathNotFound(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	_, err := fat.ResolvePath(vol, "/nope")
	assert.Error(t, err)
}

func TestListDirectorySkipsNothingButVolumeIDisCallerFiltered(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	require.NoError(t, fat.Mkdir(vol, "/x"))
	entries, err := fat.ListDirectory(vol, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "X", entries[0].Raw.DisplayName())
}
