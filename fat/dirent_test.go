package fat_test

import (
	"testing"

	"github.com/dosimage/fatimage/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToShortNameRoundTrip(t *testing.T) {
	name, ext, err := fat.ToShortName("HELLO.TXT")
	require.NoError(t, err)

	raw := fat.RawDirent{Name: name, Extension: ext}
	assert.Equal(t, "HELLO.TXT", raw.DisplayName())
}

func TestToShortNameNoExtension(t *testing.T) {
	name, ext, err := fat.ToShortName("README")
	require.NoError(t, err)
	raw := fat.RawDirent{Name: name, Extension: ext}
	assert.Equal(t, "README", raw.DisplayName())
}

func TestToShortNameLowercaseFolds(t *testing.T) {
	name, _, err := fat.ToShortName("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "HELLO   ", string(name[:]))
}

func TestToShortNameRejectsEmptyAndDots(t *testing.T) {
	for _, bad := range []string{"", ".", ".."} {
		_, _, err := fat.ToShortName(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestToShortNameRejectsTooManyDots(t *testing.T) {
	_, _, err := fat.ToShortName("a.b.c")
	assert.Error(t, err)
}

func TestToShortNameRejectsIllegalChars(t *testing.T) {
	_, _, err := fat.ToShortName("bad*name")
	assert.Error(t, err)
}

func TestToShortNameRejectsTooLong(t *testing.T) {
	_, _, err := fat.ToShortName("abcdefghi")
	assert.Error(t, err)

	_, _, err = fat.ToShortName("a.bcde")
	assert.Error(t, err)
}

func TestToVolumeLabelRejectsAsterisk(t *testing.T) {
	_, err := fat.ToVolumeLabel("bad*name")
	assert.Error(t, err)
}

func TestToVolumeLabelAcceptsAllowedSymbols(t *testing.T) {
	_, err := fat.ToVolumeLabel("A_B-C!D")
	assert.NoError(t, err)
}

func TestDirentEscapedE5FirstByte(t *testing.T) {
	name, _, err := fat.ToShortName("\xe5BCDEFG")
	require.NoError(t, err)
	assert.EqualValues(t, 0x05, name[0])
}
