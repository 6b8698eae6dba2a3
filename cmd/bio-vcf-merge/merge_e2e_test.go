package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/grailbio/vtconsolidate/merge"
)

func mergeInputHeader(sample string) string {
	return "##fileformat=VCFv4.2\n##contig=<ID=chr1>\n" +
		"##FORMAT=<ID=E,Number=1,Type=Integer,Description=\"Evidence reads\">\n" +
		"##FORMAT=<ID=N,Number=1,Type=Integer,Description=\"Total reads\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + sample + "\n"
}

// TestMergeEndToEnd drives the full bio-vcf-merge pipeline through real
// input and output files on disk, the same way the teacher's PAM e2e
// suite round-trips through a temp directory (pam_e2e_test.go's
// TestReadWriteMultipleBlocks) rather than faking the Sink.
func TestMergeEndToEnd(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	aPath := filepath.Join(tempDir, "a.vcf")
	assert.NoError(t, os.WriteFile(aPath, []byte(mergeInputHeader("s1")+
		"chr1\t100\t.\tA\tG\t40\tPASS\t.\tE:N\t20:25\n"+
		"chr1\t300\t.\tA\tT\t40\tPASS\t.\tE:N\t20:25\n"), 0644))

	bPath := filepath.Join(tempDir, "b.vcf")
	assert.NoError(t, os.WriteFile(bPath, []byte(mergeInputHeader("s2")+
		"chr1\t100\t.\tA\tG\t35\tPASS\t.\tE:N\t18:22\n"), 0644))

	outPath := filepath.Join(tempDir, "out.vcf")
	stats, err := Merge(ctx, mergeFlags{
		inputPaths:       []string{aPath, bPath},
		outPath:          outPath,
		snpScoreCutoff:   merge.DefaultScoreCutoff,
		indelScoreCutoff: merge.DefaultScoreCutoff,
	})
	assert.NoError(t, err)
	assert.EQ(t, 2, stats.CandidateSNPs)

	r, err := vcf.NewReader(ctx, outPath)
	assert.NoError(t, err)
	defer r.Close()

	var recs []*vcf.Record
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		recs = append(recs, rec)
	}
	assert.EQ(t, 2, len(recs))

	nsamples, ok := recs[0].InfoInt("NSAMPLES")
	assert.True(t, ok, "expected NSAMPLES on merged record %+v", recs[0])
	assert.EQ(t, 2, nsamples[0])
}

// TestMergeEndToEndNoInputsFails confirms the CLI-level validation (no
// positional args, no -L) surfaces as an error from Merge rather than a
// panic, since main() turns this into log.Fatalf.
func TestMergeEndToEndNoInputsFails(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()

	_, err := Merge(ctx, mergeFlags{outPath: filepath.Join(tempDir, "out.vcf")})
	assert.True(t, err != nil, "expected an error with no input files")
}
