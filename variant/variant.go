// Package variant implements the in-memory Variant entity and the
// sliding window buffer the consolidator walks on every incoming
// record (spec.md §3, §9).
package variant

import (
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
)

// Variant is the in-memory wrapper bundling a raw record with
// classification, overlap counters, and (for a pending multi-allelic
// container) the child records awaiting synthesis.
//
// Invariants (spec.md §3): Beg1 <= End1; the three overlap counters are
// monotonically non-decreasing during buffer residency; a Variant with
// Type != Undefined has an empty Children list.
type Variant struct {
	RID        int
	Beg1, End1 int
	Type       vcf.Type

	// Record is the owned underlying record. It is non-nil for a normal
	// (non-Undefined) Variant until emit hands it to the sink. It is
	// always nil on an Undefined Variant: a synthesized record is written
	// to the sink directly and never stored here.
	Record *vcf.Record

	// Children holds the constituent biallelic records for a pending
	// multi-allelic container (Type == Undefined). Empty otherwise.
	Children []*vcf.Record

	NOverlapSNP   int
	NOverlapIndel int
	NOverlapVNTR  int
}

// NewFromRecord classifies rec and wraps it as a fresh, non-overlapping
// Variant ready for insertion into a Window.
func NewFromRecord(rec *vcf.Record) *Variant {
	typ, beg1, end1 := vcf.Classify(rec)
	if typ == vcf.Other {
		// The overlap rule table only distinguishes SNP/Indel/VNTR
		// (spec.md §4.1); fold the classifier's catch-all bucket into
		// Indel, matching the original classifier's default case.
		typ = vcf.Indel
	}
	return &Variant{
		RID: rec.RID, Beg1: beg1, End1: end1,
		Type: typ, Record: rec,
	}
}

// NewMultiallelicContainer builds a pending Undefined Variant anchored at
// the earlier of a and b (they are adjacent buffer entries at the same
// position, so a.Beg1 == b.Beg1 in practice), holding both as children.
// This is the synthesis side effect of the SNP/SNP and Indel/Indel rows
// of the overlap rule table (spec.md §4.1).
func NewMultiallelicContainer(a, b *vcf.Record, rid, beg1, end1 int) *Variant {
	return &Variant{
		RID: rid, Beg1: beg1, End1: end1,
		Type:     vcf.Undefined,
		Children: []*vcf.Record{a, b},
	}
}

// Overlaps reports whether v and u (on the same RID) interact per
// spec.md §3's overlap relation.
func Overlaps(v, u *Variant) bool {
	return v.End1 >= u.Beg1 && v.Beg1 <= u.End1
}

// Fingerprint returns a 64-bit fingerprint of the variant's genomic
// identity. The arena does not call it: Arena.Get detects a reused slot
// by its generation alone.
func (v *Variant) Fingerprint() uint64 {
	var buf []byte
	buf = appendInt(buf, v.RID)
	buf = appendInt(buf, v.Beg1)
	buf = appendInt(buf, v.End1)
	if v.Record != nil {
		buf = append(buf, v.Record.Ref...)
		buf = append(buf, v.Record.AltString()...)
	}
	return farm.Hash64(buf)
}

func appendInt(buf []byte, v int) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
