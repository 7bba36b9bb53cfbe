package symtab

import "encoding/binary"

// SyntheticLogSite describes one log call site for building a synthetic
// artifact, used by tests and by the root package's NewSyntheticArtifact
// test helper to exercise Load without a real firmware build.
type SyntheticLogSite struct {
	Level    uint32
	Line     uint32
	TypeWord uint32
	Filename string
	Format   string
}

// BuildSyntheticELF assembles the smallest possible little-endian ELF64
// image carrying a single ".logs" section built from sites, with each
// record padded to stride bytes (the section's sh_addralign, matching the
// fixed-stride record layout the real loader expects).
func BuildSyntheticELF(sites []SyntheticLogSite, stride int) []byte {
	order := binary.LittleEndian

	var logsData []byte
	for _, s := range sites {
		logsData = append(logsData, buildSyntheticRecord(order, s, stride)...)
	}

	return BuildSyntheticELFRaw(logsData, stride)
}

// BuildSyntheticELFRaw is BuildSyntheticELF with the .logs section's bytes
// supplied directly, for tests exercising malformed records (short reads,
// a size that isn't a multiple of stride) that BuildSyntheticELF's
// well-formed records can't produce.
func BuildSyntheticELFRaw(logsData []byte, stride int) []byte {
	order := binary.LittleEndian

	const (
		ehsize = 64
		shsize = 64
	)

	shstrtab := []byte{0x00}
	nameOff := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, name...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	logsNameOff := nameOff(".logs")
	shstrtabNameOff := nameOff(".shstrtab")

	logsOff := uint64(ehsize)
	shstrtabOff := logsOff + uint64(len(logsData))
	shOff := shstrtabOff + uint64(len(shstrtab))

	buf := make([]byte, shOff+shsize*3)

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	order.PutUint16(buf[16:18], 2)  // ET_EXEC
	order.PutUint16(buf[18:20], 62) // EM_X86_64
	order.PutUint32(buf[20:24], 1)  // EV_CURRENT
	order.PutUint64(buf[40:48], shOff)
	order.PutUint16(buf[52:54], ehsize)
	order.PutUint16(buf[58:60], shsize)
	order.PutUint16(buf[60:62], 3) // shnum
	order.PutUint16(buf[62:64], 2) // shstrndx

	copy(buf[logsOff:], logsData)
	copy(buf[shstrtabOff:], shstrtab)

	writeSH := func(idx int, nameOff, shType uint32, offset, size, addralign uint64) {
		base := int(shOff) + idx*shsize
		order.PutUint32(buf[base:base+4], nameOff)
		order.PutUint32(buf[base+4:base+8], shType)
		order.PutUint64(buf[base+24:base+32], offset)
		order.PutUint64(buf[base+32:base+40], size)
		order.PutUint64(buf[base+48:base+56], addralign)
	}
	writeSH(0, 0, 0, 0, 0, 0)                                            // SHT_NULL
	writeSH(1, logsNameOff, 1, logsOff, uint64(len(logsData)), uint64(stride)) // SHT_PROGBITS .logs
	writeSH(2, shstrtabNameOff, 3, shstrtabOff, uint64(len(shstrtab)), 1)      // SHT_STRTAB

	return buf
}

// BuildSyntheticELFNoLogsSection builds a minimal ELF64 image with no
// ".logs" section at all, for exercising ErrNoSection.
func BuildSyntheticELFNoLogsSection() []byte {
	order := binary.LittleEndian

	const (
		ehsize = 64
		shsize = 64
	)

	shstrtab := []byte{0x00, '.', 's', 'h', 's', 't', 'r', 't', 'a', 'b', 0x00}
	shstrtabNameOff := uint32(1)
	shstrtabOff := uint64(ehsize)
	shOff := shstrtabOff + uint64(len(shstrtab))

	buf := make([]byte, shOff+shsize*2)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1
	order.PutUint16(buf[16:18], 2)
	order.PutUint16(buf[18:20], 62)
	order.PutUint32(buf[20:24], 1)
	order.PutUint64(buf[40:48], shOff)
	order.PutUint16(buf[52:54], ehsize)
	order.PutUint16(buf[58:60], shsize)
	order.PutUint16(buf[60:62], 2) // shnum
	order.PutUint16(buf[62:64], 1) // shstrndx

	copy(buf[shstrtabOff:], shstrtab)

	writeSH := func(idx int, nameOff, shType uint32, offset, size, addralign uint64) {
		base := int(shOff) + idx*shsize
		order.PutUint32(buf[base:base+4], nameOff)
		order.PutUint32(buf[base+4:base+8], shType)
		order.PutUint64(buf[base+24:base+32], offset)
		order.PutUint64(buf[base+32:base+40], size)
		order.PutUint64(buf[base+48:base+56], addralign)
	}
	writeSH(0, 0, 0, 0, 0, 0)
	writeSH(1, shstrtabNameOff, 3, shstrtabOff, uint64(len(shstrtab)), 1)

	return buf
}

func buildSyntheticRecord(order binary.ByteOrder, s SyntheticLogSite, stride int) []byte {
	rec := make([]byte, 12)
	order.PutUint32(rec[0:4], s.Level)
	order.PutUint32(rec[4:8], s.Line)
	order.PutUint32(rec[8:12], s.TypeWord)
	rec = append(rec, []byte(s.Filename)...)
	rec = append(rec, 0)
	rec = append(rec, []byte(s.Format)...)
	rec = append(rec, 0)
	for len(rec) < stride {
		rec = append(rec, 0)
	}
	return rec
}
