package wal

import "hash/crc32"

// castagnoliTable is the CRC32C polynomial table, faster than the IEEE
// polynomial on modern hardware with a CRC32 instruction. Ground: the
// teacher's pkg/wal/checksum.go uses the same table for the same reason.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums data with CRC32C.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data matches an expected checksum.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}

// ErrChecksumMismatch is returned by DecodeRecord when the trailing
// CRC32 does not match the record bytes — a torn write at the tail of
// the log, or genuine corruption.
var ErrChecksumMismatch = crc32Mismatch{}

type crc32Mismatch struct{}

func (crc32Mismatch) Error() string { return "wal: record checksum mismatch" }
