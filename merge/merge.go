package merge

import (
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
)

// maxSampleNames caps how many contributing sample names are copied into
// the SAMPLES info field, per spec.md §4.2 ("up to the first 10 samples
// in encounter order").
const maxSampleNames = 10

// Config controls Merger thresholds.
type Config struct {
	// SNPScoreCutoff and IndelScoreCutoff are the minimum QUAL a
	// contributing source's record must carry to count toward the
	// synthesized site (spec.md §4.2's "-c"/"-d" thresholds).
	SNPScoreCutoff   float64
	IndelScoreCutoff float64
}

// DefaultScoreCutoff is the threshold used when a Config leaves a cutoff
// at its zero value (spec.md §6: both default to 30).
const DefaultScoreCutoff = 30

// Stats accumulates the run counters the original `vt
// merge_candidate_variants` tool prints at exit.
type Stats struct {
	CandidateSNPs   int
	CandidateIndels int
}

// Merger implements spec.md §4.2's per-position aggregation algorithm.
type Merger struct {
	cfg  Config
	sink vcf.Sink
	hdr  *vcf.Header

	Stats Stats
}

// New returns a Merger writing the aggregated site records to sink. hdr
// is the output header (normally SyncedReader.Header, with this
// package's INFO fields and a ##QUAL description line added).
func New(hdr *vcf.Header, sink vcf.Sink, cfg Config) *Merger {
	if cfg.SNPScoreCutoff == 0 {
		cfg.SNPScoreCutoff = DefaultScoreCutoff
	}
	if cfg.IndelScoreCutoff == 0 {
		cfg.IndelScoreCutoff = DefaultScoreCutoff
	}
	hdr.Extra = append(hdr.Extra,
		"##QUAL=Maximum variant score of the alternative allele likelihood ratio: "+
			"-10 * log10 [P(Non variant)/P(Variant)] amongst all individuals.")
	hdr.AddInfo("NSAMPLES", "1", "Integer", "Number of samples.")
	hdr.AddInfo("SAMPLES", ".", "String", "Samples with evidence. (up to first 10 samples)")
	hdr.AddInfo("E", ".", "Integer", "Evidence read counts for each sample")
	hdr.AddInfo("N", ".", "Integer", "Read counts for each sample")
	hdr.AddInfo("ESUM", "1", "Integer", "Total evidence read count")
	hdr.AddInfo("NSUM", "1", "Integer", "Total read count")
	return &Merger{cfg: cfg, sink: sink, hdr: hdr}
}

// Run drains sr, writing one aggregated record per synchronized batch
// whose best contributing score clears the relevant cutoff.
func (m *Merger) Run(sr *SyncedReader) error {
	for {
		batch, ok, err := sr.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := m.ProcessBatch(batch); err != nil {
			return err
		}
	}
}

// ProcessBatch implements the body of spec.md §4.2's per-position loop:
// classify the site from the first candidate's alleles, accumulate E/N
// evidence from every candidate whose own score clears the cutoff for
// its type, and emit only if at least one candidate cleared it.
func (m *Merger) ProcessBatch(batch []Candidate) error {
	if len(batch) == 0 {
		return nil
	}
	anchor := batch[0].Record
	out := vcf.NewRecord()
	out.RID = anchor.RID
	out.Pos = anchor.Pos
	out.Ref = anchor.Ref
	out.Alt = append([]string(nil), anchor.Alt...)

	typ, _, _ := vcf.Classify(out)

	var (
		e, n              []int
		esum, nsum        int
		sampleNames       []string
		totalSamples      int
		bestScore         float64
		anyClearedCutoff  bool
	)

	for _, cand := range batch {
		score := cand.Record.QualOrZero()
		cutoff, recognized := m.cutoffFor(typ)
		if !recognized || score < cutoff {
			continue
		}
		anyClearedCutoff = true
		if score > bestScore {
			bestScore = score
		}

		switch cand.Kind {
		case Single:
			ev, okE := cand.Record.FormatInt(0, "E")
			nv, okN := cand.Record.FormatInt(0, "N")
			if !okE || !okN {
				log.Error.Printf("merge: %s: record at pos %d missing FORMAT E/N", cand.Path, cand.Record.Pos)
				continue
			}
			totalSamples++
			e = append(e, ev)
			n = append(n, nv)
			esum += ev
			nsum += nv
			if len(sampleNames) < maxSampleNames {
				sampleNames = append(sampleNames, cand.SampleName)
			}
		case Aggregated:
			nsamples, okNS := cand.Record.InfoInt("NSAMPLES")
			ev, okE := cand.Record.InfoInt("E")
			nv, okN := cand.Record.InfoInt("N")
			names, okS := cand.Record.InfoString("SAMPLES")
			if !okNS || !okE || !okN || !okS || len(nsamples) == 0 {
				log.Error.Printf("merge: %s: record at pos %d missing aggregate INFO fields", cand.Path, cand.Record.Pos)
				continue
			}
			before := totalSamples
			for j := 0; j < nsamples[0] && j < len(ev) && j < len(nv); j++ {
				totalSamples++
				e = append(e, ev[j])
				n = append(n, nv[j])
				esum += ev[j]
				nsum += nv[j]
			}
			if before < maxSampleNames {
				for _, name := range strings.Split(names, ",") {
					if name == "" || len(sampleNames) >= maxSampleNames {
						break
					}
					sampleNames = append(sampleNames, name)
				}
			}
		}
	}

	if !anyClearedCutoff {
		return nil
	}

	out.SetInfoInt("NSAMPLES", []int{totalSamples})
	out.SetInfoString("SAMPLES", strings.Join(sampleNames, ","))
	out.SetInfoInt("E", e)
	out.SetInfoInt("N", n)
	out.SetInfoInt("ESUM", []int{esum})
	out.SetInfoInt("NSUM", []int{nsum})
	out.SetQual(bestScore)

	switch typ {
	case vcf.SNP:
		m.Stats.CandidateSNPs++
	case vcf.Indel:
		m.Stats.CandidateIndels++
	}
	return m.sink.Write(out)
}

func (m *Merger) cutoffFor(typ vcf.Type) (float64, bool) {
	switch typ {
	case vcf.SNP:
		return m.cfg.SNPScoreCutoff, true
	case vcf.Indel:
		return m.cfg.IndelScoreCutoff, true
	default:
		return 0, false
	}
}
