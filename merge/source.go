// Package merge implements the Candidate Merger: the N-way synchronized
// merge of per-sample candidate-variant streams described in spec.md
// §4.2.
package merge

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
)

// SourceKind classifies an input stream per spec.md §4.2's "source
// classification at open time" rule.
type SourceKind int

const (
	// Single marks a per-sample candidate file: exactly one sample,
	// FORMAT fields E and N.
	Single SourceKind = iota
	// Aggregated marks an already-merged candidate file: zero samples,
	// an NSAMPLES INFO field.
	Aggregated
)

func (k SourceKind) String() string {
	if k == Aggregated {
		return "AGGREGATED"
	}
	return "SINGLE"
}

// ClassifyHeader implements spec.md §4.2's source classification rule:
// AGGREGATED if the header declares NSAMPLES and carries no samples,
// SINGLE if it declares FORMAT E and carries exactly one sample.
// Anything else is a fatal configuration error (the original tool exits
// immediately rather than guessing).
func ClassifyHeader(hdr *vcf.Header) (SourceKind, error) {
	if hdr.HasInfo("NSAMPLES") && hdr.NSamples() == 0 {
		return Aggregated, nil
	}
	if hdr.HasFormat("E") && hdr.NSamples() == 1 {
		return Single, nil
	}
	return 0, errors.E("merge: unrecognized candidate-variant file type (need either a single-sample FORMAT E/N file or a zero-sample NSAMPLES aggregate)")
}

// leaf is one open input stream positioned at its next unread record (or
// exhausted). It implements llrb.Comparable so a SyncedReader can keep
// all open leaves ordered by (rid, pos) in a tree, the same N-way merge
// structure the teacher's shard merger uses (cmd/bio-bam-sort/sorter).
type leaf struct {
	index      int
	path       string
	source     vcf.Source
	kind       SourceKind
	sampleName string // the lone sample name, for a Single source
	rec        *vcf.Record // nil once exhausted
}

// Compare orders leaves by (RID, Pos, Ref, Alts, index): a batch is
// defined by spec.md §3 as the set of records sharing (rid, pos, ref,
// alts), not just (rid, pos), so two sources that both have a record at
// the same position but a different allele (e.g. a SNP from one sample
// and an indel anchored at the same position from another) must sort
// into distinct batches rather than being folded together. The index
// tiebreak keeps the ordering of same-allele leaves deterministic and
// stable across runs, matching spec.md §4.2's "ties broken by input
// file order" rule.
func (l *leaf) Compare(c llrb.Comparable) int {
	o := c.(*leaf)
	if l.rec.RID != o.rec.RID {
		return l.rec.RID - o.rec.RID
	}
	if l.rec.Pos != o.rec.Pos {
		return l.rec.Pos - o.rec.Pos
	}
	if l.rec.Ref != o.rec.Ref {
		return strings.Compare(l.rec.Ref, o.rec.Ref)
	}
	if la, oa := l.rec.AltString(), o.rec.AltString(); la != oa {
		return strings.Compare(la, oa)
	}
	return l.index - o.index
}

// SyncedReader performs the N-way position-synchronized read of
// spec.md §4.2: each call to Next returns every record, across every
// open input, sharing the lowest remaining (rid, pos, ref, alts).
type SyncedReader struct {
	leaves []*leaf
	tree   llrb.Tree
	Header *vcf.Header
}

// Candidate is one record contributed to a synchronized batch, tagged
// with which input file and source kind it came from.
type Candidate struct {
	Record     *vcf.Record
	Kind       SourceKind
	Path       string
	Index      int
	SampleName string // the lone sample name, populated for Single candidates
}

// OpenSyncedReader opens every path in paths (in order), classifies
// each header, and builds the position-synchronization tree. The
// returned Header merges contigs from the first input (spec.md §4.2:
// the original tool transfers contigs from its first source).
func OpenSyncedReader(ctx context.Context, paths []string) (*SyncedReader, error) {
	sr := &SyncedReader{}
	for i, p := range paths {
		src, err := vcf.NewReader(ctx, p)
		if err != nil {
			return nil, err
		}
		kind, err := ClassifyHeader(src.Header())
		if err != nil {
			return nil, fmt.Errorf("merge: %s: %w", p, err)
		}
		l := &leaf{index: i, path: p, source: src, kind: kind}
		if kind == Single {
			l.sampleName = src.Header().SampleName(0)
		}
		if err := l.advance(); err != nil {
			return nil, err
		}
		if i == 0 {
			sr.Header = src.Header()
		}
		if l.rec != nil {
			sr.tree.Insert(l)
		}
		sr.leaves = append(sr.leaves, l)
	}
	return sr, nil
}

func (l *leaf) advance() error {
	rec, err := l.source.Read()
	if err == io.EOF {
		l.rec = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("merge: %s: %w", l.path, err)
	}
	l.rec = rec
	return nil
}

// Next returns the next synchronized batch — every candidate sharing
// the minimum remaining (rid, pos, ref, alts) across all open inputs —
// or ok=false once every input is exhausted.
func (sr *SyncedReader) Next() ([]Candidate, bool, error) {
	if sr.tree.Len() == 0 {
		return nil, false, nil
	}
	min := sr.min()
	rid, pos, ref, alt := min.rec.RID, min.rec.Pos, min.rec.Ref, min.rec.AltString()

	var matched []*leaf
	for sr.tree.Len() > 0 {
		top := sr.min()
		if top.rec.RID != rid || top.rec.Pos != pos || top.rec.Ref != ref || top.rec.AltString() != alt {
			break
		}
		sr.tree.DeleteMin()
		matched = append(matched, top)
	}

	batch := make([]Candidate, len(matched))
	for i, l := range matched {
		batch[i] = Candidate{Record: l.rec, Kind: l.kind, Path: l.path, Index: l.index, SampleName: l.sampleName}
	}
	for _, l := range matched {
		if err := l.advance(); err != nil {
			return nil, false, err
		}
		if l.rec != nil {
			sr.tree.Insert(l)
		}
	}
	return batch, true, nil
}

func (sr *SyncedReader) min() *leaf {
	var top *leaf
	sr.tree.Do(func(item llrb.Comparable) bool {
		top = item.(*leaf)
		return true
	})
	return top
}

// Close closes every open input stream, returning the first error
// encountered (if any) after attempting to close them all.
func (sr *SyncedReader) Close() error {
	var first error
	for _, l := range sr.leaves {
		if err := l.source.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
