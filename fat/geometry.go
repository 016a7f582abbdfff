package fat

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
)

// hexByte unmarshals a CSV cell written as "0xNN" into a byte. The embedded
// geometry table writes media descriptors in their conventional hex form.
type hexByte uint8

func (h *hexByte) UnmarshalCSV(value string) error {
	n, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 8)
	if err != nil {
		return fmt.Errorf("invalid media descriptor %q: %w", value, err)
	}
	*h = hexByte(n)
	return nil
}

// floppyGeometry is one row of the fixed BPB table consulted for images
// whose total sector count matches a well-known floppy format. See
// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats for the source
// geometries.
type floppyGeometry struct {
	TotalSectors      uint    `csv:"total_sectors"`
	SectorsPerCluster uint8   `csv:"sectors_per_cluster"`
	RootEntries       uint16  `csv:"root_entries"`
	MediaDescriptor   hexByte `csv:"media_descriptor"`
	SectorsPerTrack   uint16  `csv:"sectors_per_track"`
	Heads             uint16  `csv:"heads"`
}

//go:embed geometry.csv
var rawFloppyGeometryCSV string

var (
	floppyGeometriesOnce sync.Once
	floppyGeometries     map[uint]floppyGeometry
)

func loadFloppyGeometries() {
	floppyGeometries = map[uint]floppyGeometry{}
	rows := []*floppyGeometry{}

	err := gocsv.UnmarshalString(rawFloppyGeometryCSV, &rows)
	if err != nil {
		panic(fmt.Sprintf("fat: malformed embedded floppy geometry table: %s", err))
	}

	for _, row := range rows {
		floppyGeometries[row.TotalSectors] = *row
	}
}

// lookupFloppyGeometry returns the fixed BPB geometry for a well-known
// floppy format with exactly totalSectors sectors, if one exists.
func lookupFloppyGeometry(totalSectors uint) (floppyGeometry, bool) {
	floppyGeometriesOnce.Do(loadFloppyGeometries)
	g, ok := floppyGeometries[totalSectors]
	return g, ok
}
