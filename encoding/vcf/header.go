// Package vcf provides a minimal, line-oriented reader/writer for the
// variant call record stream consumed by the consolidate and merge
// packages. It treats the underlying record format as an opaque
// capability (read chrom/pos/alleles, read/write info and format arrays,
// set/clear filter ids, clone, destroy) rather than a full VCF
// implementation; the real columnar binary codec this stands in for is
// out of scope for this repository.
package vcf

import "fmt"

// FilterDef is a single ##FILTER header line.
type FilterDef struct {
	ID          string
	Description string
}

// InfoDef is a single ##INFO header line.
type InfoDef struct {
	ID          string
	Number      string // "1", "." (variable), "A", "G", etc.
	Type        string // "Integer", "Float", "String", "Flag"
	Description string
}

// FormatDef is a single ##FORMAT header line.
type FormatDef = InfoDef

// Header holds the metadata needed by the consolidator and merger: the
// contig order (which defines RID), the declared FILTER/INFO/FORMAT ids,
// and the sample names. Other header lines (fileformat, free-text QUAL
// description, etc.) are preserved verbatim in Extra so they round-trip
// to the output.
type Header struct {
	Contigs     []string
	contigIndex map[string]int

	Filters []FilterDef
	Infos   []InfoDef
	Formats []FormatDef
	Samples []string

	// Extra holds header lines this package does not interpret (e.g.
	// ##fileformat, ##QUAL, ##reference) in the order they were read, so
	// they are copied through to the output header unchanged.
	Extra []string

	filterSet map[string]bool
	infoSet   map[string]bool
	formatSet map[string]bool
}

// NewHeader returns an empty header ready for programmatic construction
// (used by Reader while parsing a file's header, and by tests that build
// a header in code).
func NewHeader() *Header {
	return &Header{
		contigIndex: map[string]int{},
		filterSet:   map[string]bool{},
		infoSet:     map[string]bool{},
		formatSet:   map[string]bool{},
	}
}

// ContigID returns the RID for name, assigning the next sequential id
// (and appending a ##contig line) the first time name is seen. Like real
// BCF, RID is simply the contig's position in header order.
func (h *Header) ContigID(name string) int {
	if h.contigIndex == nil {
		h.contigIndex = map[string]int{}
	}
	if id, ok := h.contigIndex[name]; ok {
		return id
	}
	id := len(h.Contigs)
	h.Contigs = append(h.Contigs, name)
	h.contigIndex[name] = id
	return id
}

// ContigName returns the contig name for rid, or "" if rid is out of range.
func (h *Header) ContigName(rid int) string {
	if rid < 0 || rid >= len(h.Contigs) {
		return ""
	}
	return h.Contigs[rid]
}

// AddFilter declares a FILTER id, ignoring duplicates.
func (h *Header) AddFilter(id, description string) {
	if h.filterSet == nil {
		h.filterSet = map[string]bool{}
	}
	if h.filterSet[id] {
		return
	}
	h.filterSet[id] = true
	h.Filters = append(h.Filters, FilterDef{ID: id, Description: description})
}

// AddInfo declares an INFO id, ignoring duplicates.
func (h *Header) AddInfo(id, number, typ, description string) {
	if h.infoSet == nil {
		h.infoSet = map[string]bool{}
	}
	if h.infoSet[id] {
		return
	}
	h.infoSet[id] = true
	h.Infos = append(h.Infos, InfoDef{ID: id, Number: number, Type: typ, Description: description})
}

// AddFormat declares a FORMAT id, ignoring duplicates.
func (h *Header) AddFormat(id, number, typ, description string) {
	if h.formatSet == nil {
		h.formatSet = map[string]bool{}
	}
	if h.formatSet[id] {
		return
	}
	h.formatSet[id] = true
	h.Formats = append(h.Formats, FormatDef{ID: id, Number: number, Type: typ, Description: description})
}

// HasInfo reports whether id is declared as an INFO field.
func (h *Header) HasInfo(id string) bool { return h.infoSet[id] }

// HasFormat reports whether id is declared as a FORMAT field.
func (h *Header) HasFormat(id string) bool { return h.formatSet[id] }

// NSamples returns the number of samples declared by the header.
func (h *Header) NSamples() int { return len(h.Samples) }

// SampleName returns the name of the i'th sample, or "" if out of range.
func (h *Header) SampleName(i int) string {
	if i < 0 || i >= len(h.Samples) {
		return ""
	}
	return h.Samples[i]
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{%d contigs, %d samples}", len(h.Contigs), len(h.Samples))
}
