// Package symtab loads the firmware's out-of-band log metadata from the
// ELF artifact's .logs section: one LogSite per log call site, keyed by
// the numeric log id the firmware emits on the wire.
package symtab

import (
	"bytes"
	"crypto/sha256"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/adarwoo/ulogger/internal/constants"
	"github.com/adarwoo/ulogger/internal/typecode"
)

// IDWidth selects how wide the on-wire log id field is.
type IDWidth int

const (
	IDWidth16 IDWidth = iota
	IDWidth8
)

// LogSite is the static metadata for one log call site, decoded from the
// artifact's .logs section.
type LogSite struct {
	ID                 uint16
	Level              uint32
	Line               uint32
	Filename           string
	Format             string
	Types              []typecode.Code
	PayloadLengthFixed int
}

func fixedPayloadLength(types []typecode.Code) int {
	total := 0
	for _, c := range types {
		if w, ok := c.FixedWidth(); ok {
			total += w
		}
	}
	return total
}

// SymbolTable is the ordered collection of log sites extracted from one
// artifact, plus the byte order that every subsequent frame from this
// artifact must be decoded with.
type SymbolTable struct {
	sites     map[uint16]LogSite
	order     []uint16
	byteOrder binary.ByteOrder
	sha256    [32]byte
	width     IDWidth
}

// NewForTest builds a SymbolTable directly from a slice of sites, assigning
// ids by position. It exists so tests (and the root package's synthetic
// artifact helpers) can exercise the reassembler and watcher without
// constructing a real ELF file.
func NewForTest(sites []LogSite, order binary.ByteOrder, width IDWidth) *SymbolTable {
	t := &SymbolTable{
		sites:     make(map[uint16]LogSite),
		byteOrder: order,
		width:     width,
	}
	for i, s := range sites {
		id := uint16(i)
		s.ID = id
		if s.PayloadLengthFixed == 0 {
			s.PayloadLengthFixed = fixedPayloadLength(s.Types)
		}
		t.sites[id] = s
		t.order = append(t.order, id)
	}
	return t
}

// Lookup finds the LogSite for id.
func (t *SymbolTable) Lookup(id uint16) (LogSite, bool) {
	s, ok := t.sites[id]
	return s, ok
}

// Len returns the number of log sites in the table.
func (t *SymbolTable) Len() int { return len(t.order) }

// ByteOrder is the artifact's declared byte order, used to decode every
// multi-byte field on the wire except Float32 (always little-endian).
func (t *SymbolTable) ByteOrder() binary.ByteOrder { return t.byteOrder }

// SHA256 is the digest of the artifact file this table was loaded from.
func (t *SymbolTable) SHA256() [32]byte { return t.sha256 }

// OverrunID and StartID return the reserved sentinel ids for this table's
// configured id width.
func (t *SymbolTable) OverrunID() uint16 {
	if t.width == IDWidth8 {
		return constants.ReservedOverrunID8
	}
	return constants.ReservedOverrunID16
}

func (t *SymbolTable) StartID() uint16 {
	if t.width == IDWidth8 {
		return constants.ReservedStartID8
	}
	return constants.ReservedStartID16
}

// ErrNoSection is returned when the artifact has no .logs section.
var ErrNoSection = fmt.Errorf("symtab: artifact has no .logs section")

// ErrTruncatedSection is returned when the .logs section ends mid-record.
var ErrTruncatedSection = fmt.Errorf("symtab: .logs section truncated")

// Load reads path, hashes it, and parses its .logs section into a
// SymbolTable. The artifact's declared byte order governs decoding of
// every multi-byte field in the section.
func Load(path string, width IDWidth) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symtab: open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return nil, fmt.Errorf("symtab: hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("symtab: seek %s: %w", path, err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("symtab: parse ELF %s: %w", path, err)
	}

	section := ef.Section(".logs")
	if section == nil {
		return nil, ErrNoSection
	}
	data, err := section.Data()
	if err != nil {
		return nil, fmt.Errorf("symtab: read .logs section: %w", err)
	}

	order := ef.ByteOrder

	stride := int(section.Addralign)
	sites, ids, err := parseLogs(data, order, stride)
	if err != nil {
		return nil, err
	}

	t := &SymbolTable{
		sites:     sites,
		order:     ids,
		byteOrder: order,
		width:     width,
	}
	copy(t.sha256[:], digest.Sum(nil))
	return t, nil
}

// parseLogs walks the .logs section as a sequence of fixed-stride records:
// level(4B) line(4B) typecode(4B) filename\0 format\0, padded with zeros to
// stride, in artifact byte order, repeated until the section is exhausted.
// stride is the section's alignment field, repurposed as per-record size.
func parseLogs(data []byte, order binary.ByteOrder, stride int) (map[uint16]LogSite, []uint16, error) {
	if stride <= 0 {
		stride = len(data)
	}
	if len(data)%stride != 0 {
		return nil, nil, ErrTruncatedSection
	}

	sites := make(map[uint16]LogSite)
	var ids []uint16

	var nextID uint16
	for off := 0; off < len(data); off += stride {
		record := data[off : off+stride]
		if len(record) < 12 {
			return nil, nil, ErrTruncatedSection
		}
		r := bytes.NewReader(record)

		var hdr [12]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrTruncatedSection, err)
		}
		level := order.Uint32(hdr[0:4])
		line := order.Uint32(hdr[4:8])
		typeWord := order.Uint32(hdr[8:12])

		filename, err := readCString(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: filename: %v", ErrTruncatedSection, err)
		}
		format, err := readCString(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: format: %v", ErrTruncatedSection, err)
		}

		types, err := typecode.DecodeVector(typeWord)
		if err != nil {
			return nil, nil, err
		}

		id := nextID
		nextID++
		sites[id] = LogSite{
			ID:                 id,
			Level:              level,
			Line:               line,
			Filename:           basename(filename),
			Format:             format,
			Types:              types,
			PayloadLengthFixed: fixedPayloadLength(types),
		}
		ids = append(ids, id)
	}
	return sites, ids, nil
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func readCString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}
