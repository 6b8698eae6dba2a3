package merge

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aggregatedHeader = `##fileformat=VCFv4.2
##contig=<ID=chr1>
##INFO=<ID=NSAMPLES,Number=1,Type=Integer,Description="Number of samples">
##INFO=<ID=E,Number=.,Type=Integer,Description="Evidence">
##INFO=<ID=N,Number=.,Type=Integer,Description="Totals">
##INFO=<ID=SAMPLES,Number=.,Type=String,Description="Samples">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestClassifyHeaderSingleAndAggregated(t *testing.T) {
	dir := t.TempDir()
	ctx := vcontext.Background()

	single := writeFile(t, dir, "single.vcf", fmtHeader("sampleA")+"chr1\t100\t.\tA\tG\t40\tPASS\t.\tE:N\t20:25\n")
	r, err := vcf.NewReader(ctx, single)
	require.NoError(t, err)
	kind, err := ClassifyHeader(r.Header())
	require.NoError(t, err)
	assert.Equal(t, Single, kind)

	agg := writeFile(t, dir, "agg.vcf", aggregatedHeader+"chr1\t100\t.\tA\tG\t40\tPASS\tNSAMPLES=2;E=20,18;N=25,22;SAMPLES=s1,s2\n")
	r2, err := vcf.NewReader(ctx, agg)
	require.NoError(t, err)
	kind2, err := ClassifyHeader(r2.Header())
	require.NoError(t, err)
	assert.Equal(t, Aggregated, kind2)
}

func fmtHeader(sample string) string {
	return "##fileformat=VCFv4.2\n##contig=<ID=chr1>\n" +
		"##FORMAT=<ID=E,Number=1,Type=Integer,Description=\"Evidence reads\">\n" +
		"##FORMAT=<ID=N,Number=1,Type=Integer,Description=\"Total reads\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + sample + "\n"
}

func TestSyncedReaderMergesTiesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := vcontext.Background()

	a := writeFile(t, dir, "a.vcf", fmtHeader("sA")+
		"chr1\t100\t.\tA\tG\t40\tPASS\t.\tE:N\t20:25\n"+
		"chr1\t300\t.\tA\tT\t40\tPASS\t.\tE:N\t20:25\n")
	b := writeFile(t, dir, "b.vcf", fmtHeader("sB")+
		"chr1\t100\t.\tA\tG\t35\tPASS\t.\tE:N\t18:22\n"+
		"chr1\t200\t.\tA\tC\t40\tPASS\t.\tE:N\t20:25\n")

	sr, err := OpenSyncedReader(ctx, []string{a, b})
	require.NoError(t, err)
	defer sr.Close()

	batch, ok, err := sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 2) // both files tied at pos 100
	assert.Equal(t, 100, batch[0].Record.Pos)

	batch, ok, err = sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, 200, batch[0].Record.Pos)

	batch, ok, err = sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, 300, batch[0].Record.Pos)

	_, ok, err = sr.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncedReaderKeepsDistinctAllelesAtSamePositionSeparate(t *testing.T) {
	dir := t.TempDir()
	ctx := vcontext.Background()

	// Same (rid,pos) but different alleles: a SNP in one source, an
	// indel anchored at the same position in the other. These must not
	// be folded into a single batch.
	a := writeFile(t, dir, "a.vcf", fmtHeader("sA")+
		"chr1\t100\t.\tA\tG\t40\tPASS\t.\tE:N\t20:25\n")
	b := writeFile(t, dir, "b.vcf", fmtHeader("sB")+
		"chr1\t100\t.\tA\tAT\t40\tPASS\t.\tE:N\t20:25\n")

	sr, err := OpenSyncedReader(ctx, []string{a, b})
	require.NoError(t, err)
	defer sr.Close()

	batch, ok, err := sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	firstAlt := batch[0].Record.AltString()

	batch, ok, err = sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.NotEqual(t, firstAlt, batch[0].Record.AltString())

	_, ok, err = sr.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncedReaderTracksSampleNames(t *testing.T) {
	dir := t.TempDir()
	ctx := vcontext.Background()

	a := writeFile(t, dir, "a.vcf", fmtHeader("patientX")+
		"chr1\t100\t.\tA\tG\t40\tPASS\t.\tE:N\t20:25\n")

	sr, err := OpenSyncedReader(ctx, []string{a})
	require.NoError(t, err)
	defer sr.Close()

	batch, ok, err := sr.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	assert.Equal(t, "patientX", batch[0].SampleName)
}

func newMerger() (*Merger, *fakeSink) {
	hdr := vcf.NewHeader()
	hdr.ContigID("chr1")
	sink := &fakeSink{}
	m := New(hdr, sink, Config{})
	return m, sink
}

type fakeSink struct {
	hdr *vcf.Header
	out []*vcf.Record
}

func (s *fakeSink) WriteHeader(h *vcf.Header) error { s.hdr = h; return nil }
func (s *fakeSink) Write(r *vcf.Record) error        { s.out = append(s.out, r); return nil }
func (s *fakeSink) Close() error                     { return nil }

func singleCandidate(rid, pos int, ref, alt string, qual float64, e, n int, sample string, index int) Candidate {
	r := vcf.NewRecord()
	r.RID, r.Pos, r.Ref, r.Alt = rid, pos, ref, []string{alt}
	r.SetQual(qual)
	r.SetFormatInt(0, "E", e)
	r.SetFormatInt(0, "N", n)
	return Candidate{Record: r, Kind: Single, Path: "in.vcf", Index: index, SampleName: sample}
}

func TestProcessBatchAggregatesClearedCandidates(t *testing.T) {
	m, sink := newMerger()

	batch := []Candidate{
		singleCandidate(0, 100, "A", "G", 40, 20, 25, "s1", 0),
		singleCandidate(0, 100, "A", "G", 35, 18, 22, "s2", 1),
	}
	require.NoError(t, m.ProcessBatch(batch))
	require.Len(t, sink.out, 1)

	out := sink.out[0]
	nsamples, ok := out.InfoInt("NSAMPLES")
	require.True(t, ok)
	assert.Equal(t, []int{2}, nsamples)
	esum, _ := out.InfoInt("ESUM")
	assert.Equal(t, []int{38}, esum)
	nsum, _ := out.InfoInt("NSUM")
	assert.Equal(t, []int{47}, nsum)
	samples, _ := out.InfoString("SAMPLES")
	assert.Equal(t, "s1,s2", samples)
	assert.Equal(t, 40.0, out.Qual)
	assert.Equal(t, 1, m.Stats.CandidateSNPs)
}

func TestProcessBatchSkipsBelowCutoff(t *testing.T) {
	m, sink := newMerger()

	batch := []Candidate{
		singleCandidate(0, 100, "A", "G", 10, 20, 25, "s1", 0),
	}
	require.NoError(t, m.ProcessBatch(batch))
	assert.Len(t, sink.out, 0)
	assert.Equal(t, 0, m.Stats.CandidateSNPs)
}

func TestProcessBatchCapsSampleNamesAtTen(t *testing.T) {
	m, sink := newMerger()

	var batch []Candidate
	for i := 0; i < 12; i++ {
		batch = append(batch, singleCandidate(0, 100, "A", "G", 40, 20, 25, "s"+strconv.Itoa(i), i))
	}
	require.NoError(t, m.ProcessBatch(batch))
	require.Len(t, sink.out, 1)
	samples, _ := sink.out[0].InfoString("SAMPLES")
	count := 1
	for _, c := range samples {
		if c == ',' {
			count++
		}
	}
	assert.Equal(t, maxSampleNames, count)
	nsamples, _ := sink.out[0].InfoInt("NSAMPLES")
	assert.Equal(t, []int{12}, nsamples) // NSAMPLES counts all cleared candidates, not just named ones
}

func TestProcessBatchAggregatedKind(t *testing.T) {
	m, sink := newMerger()

	r := vcf.NewRecord()
	r.RID, r.Pos, r.Ref, r.Alt = 0, 100, "A", []string{"G"}
	r.SetQual(45)
	r.SetInfoInt("NSAMPLES", []int{2})
	r.SetInfoInt("E", []int{20, 18})
	r.SetInfoInt("N", []int{25, 22})
	r.SetInfoString("SAMPLES", "s1,s2")

	batch := []Candidate{{Record: r, Kind: Aggregated, Path: "agg.vcf", Index: 0}}
	require.NoError(t, m.ProcessBatch(batch))
	require.Len(t, sink.out, 1)
	nsamples, _ := sink.out[0].InfoInt("NSAMPLES")
	assert.Equal(t, []int{2}, nsamples)
	samples, _ := sink.out[0].InfoString("SAMPLES")
	assert.Equal(t, "s1,s2", samples)
}

func TestProcessBatchEmptyBatchIsNoop(t *testing.T) {
	m, sink := newMerger()
	require.NoError(t, m.ProcessBatch(nil))
	assert.Len(t, sink.out, 0)
}
