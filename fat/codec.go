package fat

import (
	"encoding/binary"
	"time"
)

// SectorID identifies a 512-byte sector, counted from the start of the
// volume (i.e. already shifted by the volume's --offset, if any).
type SectorID uint32

// ClusterID identifies a cluster in the data area. Cluster numbering starts
// at 2; 0 and 1 are reserved.
type ClusterID uint32

// BytesPerSector is fixed at 512 throughout this engine.
const BytesPerSector = 512

// DirentSize is the size in bytes of a single 8.3 directory entry.
const DirentSize = 32

// getUint16 / putUint16 / getUint32 / putUint32 implement the little-endian
// byte codec used for every multi-byte scalar on a FAT volume.
func getUint16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }
func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getUint32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// FATEpoch is the earliest timestamp representable on a FAT volume:
// 1980-01-01 00:00:00 local time.
var FATEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

// Clock is the wall-clock collaborator consumed when stamping directory
// entries. Implementations may fail (e.g. no RTC available), in which case
// packers fall back to FATEpoch.
type Clock interface {
	Now() (time.Time, error)
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() (time.Time, error) { return time.Now(), nil }

// FixedClock is a Clock that always reports the same instant. Tests use it
// to get deterministic directory-entry timestamps.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() (time.Time, error) { return c.At, nil }

// stampFrom asks clock for the current time, falling back to FATEpoch when
// the clock fails or reports a time outside the representable range
// [1980, 2107].
func stampFrom(clock Clock) time.Time {
	if clock == nil {
		return FATEpoch
	}
	t, err := clock.Now()
	if err != nil || t.Year() < 1980 || t.Year() > 2107 {
		return FATEpoch
	}
	return t
}

// packDate packs a time.Time into the FAT on-disk date encoding:
// day | (month << 5) | ((year - 1980) << 9).
func packDate(t time.Time) uint16 {
	return uint16(t.Day()) | uint16(t.Month())<<5 | uint16(t.Year()-1980)<<9
}

// packTime packs a time.Time into the FAT on-disk time encoding:
// (sec / 2) | (min << 5) | (hour << 11). FAT timestamps only have 2-second
// resolution; the odd second is recoverable from the hundredths field some
// entries carry alongside creation time.
func packTime(t time.Time) uint16 {
	return uint16(t.Second()/2) | uint16(t.Minute())<<5 | uint16(t.Hour())<<11
}

// packHundredths packs the sub-2-second remainder of t into the
// ctime_cs/CreatedTimeMillis field: units of 10ms, 0-199 (100-199 means the
// odd second that packTime truncated away).
func packHundredths(t time.Time) uint8 {
	cs := (t.Nanosecond() / 10000000) + (t.Second()%2)*100
	return uint8(cs)
}

// PackTimestamp renders clock's current time (or FATEpoch if the clock is
// unavailable or its answer falls outside [1980, 2107]) into the three
// fields used by a directory entry's creation timestamp.
func PackTimestamp(clock Clock) (date uint16, timeVal uint16, hundredths uint8) {
	t := stampFrom(clock)
	return packDate(t), packTime(t), packHundredths(t)
}

// PackDateTime renders clock's current time into the date/time pair used by
// the last-modified and last-accessed fields, which carry no hundredths.
func PackDateTime(clock Clock) (date uint16, timeVal uint16) {
	t := stampFrom(clock)
	return packDate(t), packTime(t)
}

// UnpackDate converts a FAT on-disk date into a time.Time at midnight.
func UnpackDate(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := 1980 + int(value>>9)
	if day == 0 {
		day = 1
	}
	if month == 0 {
		month = time.January
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// UnpackTimestamp converts a FAT date/time/hundredths triple into a
// time.Time. timePart and hundredths may be zero for fields that don't carry
// them (e.g. last-accessed only has a date).
func UnpackTimestamp(datePart, timePart uint16, hundredths uint8) time.Time {
	d := UnpackDate(datePart)

	seconds := int(timePart&0x001f) * 2
	nanos := 0
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}
	nanos = int(hundredths) * 10000000

	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)

	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanos, time.Local)
}
