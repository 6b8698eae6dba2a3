package consolidate

import (
	"testing"

	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	hdr *vcf.Header
	out []*vcf.Record
}

func (s *fakeSink) WriteHeader(h *vcf.Header) error { s.hdr = h; return nil }
func (s *fakeSink) Write(r *vcf.Record) error        { s.out = append(s.out, r); return nil }
func (s *fakeSink) Close() error                     { return nil }

func snp(rid, pos int, ref, alt string) *vcf.Record {
	r := vcf.NewRecord()
	r.RID = rid
	r.Pos = pos
	r.Ref = ref
	r.Alt = []string{alt}
	return r
}

func newConsolidator(sink *fakeSink, strict bool) *Consolidator {
	hdr := vcf.NewHeader()
	hdr.ContigID("chr1")
	return New(hdr, sink, Config{StrictAnomalies: strict})
}

func TestNonoverlappingVariantsPassThroughUnfiltered(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, true)

	require.NoError(t, c.Ingest(snp(0, 100, "A", "G")))
	require.NoError(t, c.Ingest(snp(0, 5000, "C", "T")))
	require.NoError(t, c.Finalize())

	require.Len(t, sink.out, 2)
	for _, r := range sink.out {
		assert.Equal(t, 0, r.NFilters())
		overlaps, ok := r.InfoInt("OVERLAPS")
		require.True(t, ok)
		assert.Equal(t, []int{0, 0, 0}, overlaps)
	}
}

func TestOverlappingSNPsSynthesizeMultiallelic(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, false)

	require.NoError(t, c.Ingest(snp(0, 100, "A", "G")))
	require.NoError(t, c.Ingest(snp(0, 100, "A", "T")))
	require.NoError(t, c.Finalize())

	// Both originals (now filtered) plus the synthesized multiallelic record.
	require.Len(t, sink.out, 3)

	var synthesized *vcf.Record
	filteredCount := 0
	for _, r := range sink.out {
		if r.HasFilter(FilterOverlapSNP) {
			filteredCount++
			overlaps, ok := r.InfoInt("OVERLAPS")
			require.True(t, ok)
			assert.Equal(t, 1, overlaps[0])
		} else {
			synthesized = r
		}
	}
	assert.Equal(t, 2, filteredCount)
	require.NotNil(t, synthesized)
	assert.Equal(t, "A", synthesized.Ref)
	assert.Equal(t, []string{"G", "T"}, synthesized.Alt)
}

func TestStrictAnomaliesReproducesSelectionSortBug(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, true)

	// Three mutually overlapping SNPs at the same position: G, C, A in
	// arrival order. A sorted merge would read A,C,G; the source's buggy
	// selection sort instead unconditionally resets each position it
	// visits as "i" back to its original child value right after any
	// swap, so only a swap's effect on the *last* position survives.
	require.NoError(t, c.Ingest(snp(0, 100, "A", "G")))
	require.NoError(t, c.Ingest(snp(0, 100, "A", "C")))
	require.NoError(t, c.Ingest(snp(0, 100, "A", "A")))
	require.NoError(t, c.Finalize())

	var synthesized *vcf.Record
	for _, r := range sink.out {
		if !r.HasFilter(FilterOverlapSNP) {
			synthesized = r
		}
	}
	require.NotNil(t, synthesized)
	assert.Equal(t, []string{"G", "C", "G"}, synthesized.Alt)
}

func TestSNPVNTROverlapAnomalyMisattributesCounter(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, true)

	vntr := vcf.NewRecord()
	vntr.RID, vntr.Pos, vntr.Ref, vntr.Alt = 0, 100, "ATATAT", []string{"AT"}
	vntr.SetInfoInt("END", []int{105})
	require.NoError(t, c.Ingest(vntr))
	require.NoError(t, c.Ingest(snp(0, 102, "A", "G")))
	require.NoError(t, c.Finalize())

	require.Len(t, sink.out, 2)
	var u, v *vcf.Record
	for _, r := range sink.out {
		if r.Pos == 100 {
			u = r
		} else {
			v = r
		}
	}
	// v (the SNP) is credited a second time (its own NOverlapSNP) instead
	// of the VNTR's NOverlapVNTR being incremented.
	overlapsV, _ := v.InfoInt("OVERLAPS")
	assert.Equal(t, 1, overlapsV[0]) // NOverlapSNP, anomaly credit
	assert.Equal(t, 1, overlapsV[2]) // NOverlapVNTR, always incremented for v
	overlapsU, _ := u.InfoInt("OVERLAPS")
	assert.Equal(t, 0, overlapsU[2]) // NOverlapVNTR never incremented under the anomaly
}

func TestCorrectedModeFixesSNPVNTRAnomaly(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, false)

	vntr := vcf.NewRecord()
	vntr.RID, vntr.Pos, vntr.Ref, vntr.Alt = 0, 100, "ATATAT", []string{"AT"}
	vntr.SetInfoInt("END", []int{105})
	require.NoError(t, c.Ingest(vntr))
	require.NoError(t, c.Ingest(snp(0, 102, "A", "G")))
	require.NoError(t, c.Finalize())

	var u *vcf.Record
	for _, r := range sink.out {
		if r.Pos == 100 {
			u = r
		}
	}
	overlapsU, _ := u.InfoInt("OVERLAPS")
	assert.Equal(t, 1, overlapsU[2]) // NOverlapVNTR correctly incremented
}

func TestUnorderedInputIsFatal(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, true)

	require.NoError(t, c.Ingest(snp(0, 200, "A", "G")))
	err := c.Ingest(snp(0, 100, "A", "T"))
	require.Error(t, err)
	_, ok := err.(*UnorderedInputError)
	assert.True(t, ok)
}

func TestHorizonEvictsBeforeInteracting(t *testing.T) {
	sink := &fakeSink{}
	c := newConsolidator(sink, true)
	c.horizon = 10

	require.NoError(t, c.Ingest(snp(0, 100, "A", "G")))
	require.NoError(t, c.Ingest(snp(0, 200, "A", "T"))) // far beyond horizon; no interaction
	require.NoError(t, c.Finalize())

	for _, r := range sink.out {
		assert.Equal(t, 0, r.NFilters())
	}
}
