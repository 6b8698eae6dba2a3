package interval

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// BEDRecord is a single BED interval, spec.md §6's auxiliary entity.
// Its text form is line-oriented and tab-separated,
// "<chrom>\t<start0>\t<end0>", a half-open zero-based interval; it is
// stored internally as the inclusive 1-based pair (start1 = start0+1,
// end1 = end0), matching original_source/bed.h's BEDRecord class, which
// keeps the same chrom/start1/end1 fields and round-trips through
// to_string().
type BEDRecord struct {
	Chrom      string
	Beg1, End1 int // inclusive, 1-based
}

// ParseBEDRecord parses one tab-separated BED line. Start0 must be
// non-negative and End0 must not precede Start0, matching bed.h's
// implicit assumptions (the original never validates this either, but
// a negative or inverted interval can only come from a corrupt file).
func ParseBEDRecord(line string) (BEDRecord, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return BEDRecord{}, fmt.Errorf("interval: malformed BED record %q: want <chrom>\\t<start0>\\t<end0>", line)
	}
	start0, err := strconv.Atoi(fields[1])
	if err != nil || start0 < 0 {
		return BEDRecord{}, fmt.Errorf("interval: invalid start0 in BED record %q", line)
	}
	end0, err := strconv.Atoi(fields[2])
	if err != nil || end0 < start0 {
		return BEDRecord{}, fmt.Errorf("interval: invalid end0 in BED record %q", line)
	}
	return BEDRecord{Chrom: fields[0], Beg1: start0 + 1, End1: end0}, nil
}

// String renders b back to BED text. Round-tripping a line through
// ParseBEDRecord and String reproduces the original text exactly
// (spec.md §6), since start0 = Beg1-1 and end0 = End1 recover the
// zero-based half-open bounds the 1-based fields were derived from.
func (b BEDRecord) String() string {
	return fmt.Sprintf("%s\t%d\t%d", b.Chrom, b.Beg1-1, b.End1)
}

func (b BEDRecord) region() region { return region{Chrom: b.Chrom, Beg1: b.Beg1, End1: b.End1} }

// region is a single genomic interval, 1-based inclusive: the internal
// representation a RegionSet checks candidate records against,
// regardless of whether it arrived as a colon-range -i/-I argument or a
// tab-separated BED line.
type region struct {
	Chrom      string
	Beg1, End1 int
}

// RegionSet is an unordered collection of regions checked by linear
// scan; region lists supplied via -i/-I are expected to be small (tens
// to low thousands of entries), so this trades asymptotic elegance for
// the same straightforward style as the teacher's tokenizer.
type RegionSet struct {
	regions []region
}

// Empty reports whether no restriction has been configured; an empty
// RegionSet is interpreted as "no restriction" by Overlaps, matching
// spec.md §6's "when absent, process every record" default.
func (rs *RegionSet) Empty() bool { return rs == nil || len(rs.regions) == 0 }

// Overlaps reports whether [beg1,end1] on chrom intersects any region in
// the set. An empty set always overlaps (no restriction configured).
func (rs *RegionSet) Overlaps(chrom string, beg1, end1 int) bool {
	if rs.Empty() {
		return true
	}
	for _, r := range rs.regions {
		if r.Chrom == chrom && beg1 <= r.End1 && end1 >= r.Beg1 {
			return true
		}
	}
	return false
}

// ParseRegion parses a single -i argument of the form
//   chrom:beg1-end1
//   chrom:pos1
//   chrom
// 1-based inclusive, matching the original tool's region-string syntax
// (interval/bedunion.go's ParseRegionString, adapted to 1-based
// coordinates instead of a 0-based half-open PosType pair). This is a
// distinct concept from BEDRecord: the original tool's parse_intervals
// reads this colon-range syntax for -i/-I, never tab-separated BED text.
func ParseRegion(s string) (Region, error) {
	if s == "" {
		return Region{}, fmt.Errorf("interval: empty region string")
	}
	colon := strings.IndexByte(s, ':')
	if colon == -1 {
		return Region{Chrom: s, Beg1: 1, End1: maxPos1}, nil
	}
	if colon == 0 {
		return Region{}, fmt.Errorf("interval: empty contig in region %q", s)
	}
	chrom := s[:colon]
	rangeStr := s[colon+1:]
	dash := strings.IndexByte(rangeStr, '-')
	if dash == -1 {
		pos, err := strconv.Atoi(rangeStr)
		if err != nil || pos <= 0 {
			return Region{}, fmt.Errorf("interval: invalid position in region %q", s)
		}
		return Region{Chrom: chrom, Beg1: pos, End1: pos}, nil
	}
	beg1, err := strconv.Atoi(rangeStr[:dash])
	if err != nil || beg1 <= 0 {
		return Region{}, fmt.Errorf("interval: invalid start in region %q", s)
	}
	end1, err := strconv.Atoi(rangeStr[dash+1:])
	if err != nil || end1 < beg1 {
		return Region{}, fmt.Errorf("interval: invalid end in region %q", s)
	}
	return Region{Chrom: chrom, Beg1: beg1, End1: end1}, nil
}

// Region is a parsed -i/-I colon-range region string, 1-based
// inclusive. It is a plain coordinate triple, not a BEDRecord: it never
// has tab-separated text and carries no 0-based/1-based round-trip
// contract, since the original tool never writes it back out.
type Region struct {
	Chrom      string
	Beg1, End1 int
}

func (r Region) region() region { return region{Chrom: r.Chrom, Beg1: r.Beg1, End1: r.End1} }

// maxPos1 bounds an open-ended region string ("chr22" with no range); it
// mirrors the teacher's posTypeMax-based convention in bedunion.go.
const maxPos1 = 1<<31 - 1

// NewRegionSetFromStrings parses each -i argument via ParseRegion.
func NewRegionSetFromStrings(args []string) (*RegionSet, error) {
	rs := &RegionSet{}
	for _, a := range args {
		r, err := ParseRegion(a)
		if err != nil {
			return nil, err
		}
		rs.regions = append(rs.regions, r.region())
	}
	return rs, nil
}

// NewRegionSetFromFile reads a -I interval-list file: one region per
// line (blank lines and lines starting with '#' are skipped),
// transparently gzip-decompressing a ".gz" suffix like the rest of this
// package's file readers. A line is read as tab-separated BED text
// (chrom\tstart0\tend0) when it contains a tab, and as a colon-range
// region string otherwise, so a single -I file can mix BED intervals
// lifted from another tool with hand-written colon-range entries.
func NewRegionSetFromFile(ctx context.Context, path string) (*RegionSet, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("interval: opening %s: %w", path, err)
	}
	defer f.Close(ctx)

	var sc *bufio.Scanner
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f.Reader(ctx))
		if err != nil {
			return nil, fmt.Errorf("interval: gzip header %s: %w", path, err)
		}
		defer gz.Close()
		sc = bufio.NewScanner(gz)
	} else {
		sc = bufio.NewScanner(f.Reader(ctx))
	}

	rs := &RegionSet{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsRune(line, '\t') {
			b, err := ParseBEDRecord(line)
			if err != nil {
				return nil, fmt.Errorf("interval: %s:%d: %w", path, lineNo, err)
			}
			rs.regions = append(rs.regions, b.region())
			continue
		}
		r, err := ParseRegion(line)
		if err != nil {
			return nil, fmt.Errorf("interval: %s:%d: %w", path, lineNo, err)
		}
		rs.regions = append(rs.regions, r.region())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("interval: reading %s: %w", path, err)
	}
	return rs, nil
}

// NewRegionSet merges the -i region strings and the contents of the -I
// interval-list file (either may be empty) into a single RegionSet,
// matching spec.md §6's combined -i/-I behavior.
func NewRegionSet(ctx context.Context, regionArgs []string, intervalListPath string) (*RegionSet, error) {
	rs, err := NewRegionSetFromStrings(regionArgs)
	if err != nil {
		return nil, err
	}
	if intervalListPath != "" {
		fromFile, err := NewRegionSetFromFile(ctx, intervalListPath)
		if err != nil {
			return nil, err
		}
		rs.regions = append(rs.regions, fromFile.regions...)
	}
	return rs, nil
}
