package fat_test

import (
	"strings"
	"testing"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndReadFileRoundTrip(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)

	require.NoError(t, fat.CreateFile(vol, "/HELLO.TXT", strings.NewReader("hello\n"), fat.AlwaysOverwrite{}))

	entries, err := fat.ListDirectory(vol, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Raw.DisplayName())
	assert.EqualValues(t, 6, entries[0].Raw.FileSize)

	data, err := fat.ReadFile(vol, "/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestOverwritePreservesSingleSlot(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)

	require.NoError(t, fat.CreateFile(vol, "/HELLO.TXT", strings.NewReader("hello\n"), fat.AlwaysOverwrite{}))
	firstEntry, err := fat.ResolvePath(vol, "/HELLO.TXT")
	require.NoError(t, err)
	oldChain, err := vol.Table.Chain(firstEntry.Raw.FirstCluster())
	require.NoError(t, err)

	require.NoError(t, fat.CreateFile(vol, "/HELLO.TXT", strings.NewReader("0123456789"), fat.AlwaysOverwrite{}))

	entries, err := fat.ListDirectory(vol, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.EqualValues(t, 10, entries[0].Raw.FileSize)

	for _, c := range oldChain {
		v, err := vol.Table.Get(c)
		require.NoError(t, err)
		assert.EqualValues(t, 0, v, "cluster %d from the old chain should be freed", c)
	}
}

func TestCreateFileConflictsWithDirectory(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	require.NoError(t, fat.Mkdir(vol, "/a"))
	err := fat.CreateFile(vol, "/a", strings.NewReader("x"), fat.AlwaysOverwrite{})
	assert.Error(t, err)
}

func TestCreateFileDeclinedOverwriteLeavesOriginal(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	require.NoError(t, fat.CreateFile(vol, "/HELLO.TXT", strings.NewReader("hello\n"), fat.AlwaysOverwrite{}))

	err := fat.CreateFile(vol, "/HELLO.TXT", strings.NewReader("nope"), fat.NeverOverwrite{})
	require.NoError(t, err)

	data, err := fat.ReadFile(vol, "/HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestChainLengthMatchesFileSize(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	spc := int(vol.BootSector.SectorsPerCluster)
	clusterBytes := spc * fat.BytesPerSector

	content := strings.Repeat("x", clusterBytes*2+37)
	require.NoError(t, fat.CreateFile(vol, "/BIG.BIN", strings.NewReader(content), fat.AlwaysOverwrite{}))

	entry, err := fat.ResolvePath(vol, "/BIG.BIN")
	require.NoError(t, err)
	chain, err := vol.Table.Chain(entry.Raw.FirstCluster())
	require.NoError(t, err)
	assert.Len(t, chain, 3)

	data, err := fat.ReadFile(vol, "/BIG.BIN")
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestTruncateShrinksAndFreesTail(t *testing.T) {
	vol := freshVolume(t, 1440*1024/fat.BytesPerSector)
	spc := int(vol.BootSector.SectorsPerCluster)
	clusterBytes := uint32(spc * fat.BytesPerSector)

	content := strings.Repeat("y", int(clusterBytes)*2)
	require.NoError(t, fat.CreateFile(vol, "/T.BIN", strings.NewReader(content), fat.AlwaysOverwrite{}))

	require.NoError(t, fat.Truncate(vol, "/T.BIN", clusterBytes))

	entry, err := fat.ResolvePath(vol, "/T.BIN")
	require.NoError(t, err)
	assert.EqualValues(t, clusterBytes, entry.Raw.FileSize)

	chain, err := vol.Table.Chain(entry.Raw.FirstCluster())
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}
