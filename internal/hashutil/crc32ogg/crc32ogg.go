// Package crc32ogg implements the CRC-32 variant used for Ogg page
// checksums.
//
// ref: RFC 3533 §6 — polynomial 0x04C11DB7, initial value 0, no input or
// output reflection, no final XOR. This differs from the reflected CRC-32
// ("IEEE 802.3") used by Go's hash/crc32, so it cannot share that
// implementation or table.
package crc32ogg

// Table is the unreflected CRC-32 lookup table for Ogg pages.
var Table = makeTable(0x04C11DB7)

func makeTable(poly uint32) [256]uint32 {
	var table [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// Update folds data into the running CRC-32 value crc.
func Update(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = (crc << 8) ^ Table[byte(crc>>24)^b]
	}
	return crc
}

// Checksum computes the CRC-32 of data from a zero initial value.
func Checksum(data []byte) uint32 {
	return Update(0, data)
}

// PageChecksum computes the CRC-32 of a full Ogg page with its checksum
// field (bytes 22-25 of the page header) zeroed, per RFC 3533 §6. page must
// be the complete page (header + segment table + payload); the function
// does not mutate page.
func PageChecksum(page []byte) uint32 {
	if len(page) < 27 {
		return Checksum(page)
	}
	var crc uint32
	for i, b := range page {
		if i >= 22 && i < 26 {
			b = 0
		}
		crc = (crc << 8) ^ Table[byte(crc>>24)^b]
	}
	return crc
}
