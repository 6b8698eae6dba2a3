// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
bio-vcf-consolidate annotates variant overlaps within a sliding window and
synthesizes multi-allelic records from clusters of overlapping biallelic
SNPs.
*/

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/vtconsolidate/consolidate"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/grailbio/vtconsolidate/interval"
)

var (
	outPath         = flag.String("o", "-", "Output VCF path [-]")
	intervals       = flag.String("i", "", "Comma-separated list of regions to restrict processing to []")
	intervalList    = flag.String("I", "", "File containing a list of intervals to restrict processing to []")
	strictAnomalies = flag.Bool("strict-anomalies", true, "Reproduce the source tool's documented overlap-counting anomalies exactly. Set to false for corrected symmetric counting")
	horizon         = flag.Int("horizon", consolidate.Horizon, "Interaction horizon in bases")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS] <input.vcf>\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// consolidateFlags collects the options main() parses from the command
// line, kept apart from flag.Parse so Consolidate can be driven directly
// by tests (the same split the teacher uses in cmd/bio-fusion between
// fusionFlags and DetectFusion).
type consolidateFlags struct {
	inputPath       string
	outPath         string
	regionArgs      []string
	intervalList    string
	strictAnomalies bool
	horizon         int
}

// Consolidate runs one full consolidate pass: open inputPath, apply the
// region restriction (if any), annotate and synthesize through a
// consolidate.Consolidator, and write outPath. It returns the run's
// final Stats so a caller (main or a test) can report or assert on them.
func Consolidate(ctx context.Context, f consolidateFlags) (consolidate.Stats, error) {
	regions, err := interval.NewRegionSet(ctx, f.regionArgs, f.intervalList)
	if err != nil {
		return consolidate.Stats{}, err
	}

	log.Debug.Printf("options: input %s, output %s, horizon %d, strict-anomalies %v", f.inputPath, f.outPath, f.horizon, f.strictAnomalies)

	src, err := vcf.NewReader(ctx, f.inputPath)
	if err != nil {
		return consolidate.Stats{}, err
	}
	defer src.Close()

	sink, err := vcf.NewWriter(ctx, f.outPath)
	if err != nil {
		return consolidate.Stats{}, err
	}

	hdr := src.Header()
	cfg := consolidate.Config{
		Horizon:         f.horizon,
		StrictAnomalies: f.strictAnomalies,
		InputPath:       f.inputPath,
	}
	c := consolidate.New(hdr, sink, cfg)
	if err := sink.WriteHeader(hdr); err != nil {
		return consolidate.Stats{}, err
	}

	for {
		rec, err := src.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return consolidate.Stats{}, err
		}
		if !regions.Empty() {
			_, beg1, end1 := vcf.Classify(rec)
			if !regions.Overlaps(rec.Chrom(hdr), beg1, end1) {
				continue
			}
		}
		if err := c.Ingest(rec); err != nil {
			return consolidate.Stats{}, err
		}
	}
	if err := c.Finalize(); err != nil {
		return consolidate.Stats{}, err
	}
	if err := sink.Close(); err != nil {
		return consolidate.Stats{}, err
	}
	return c.Stats, nil
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("exactly one positional argument (input.vcf) required; got %d: %s", flag.NArg(), strings.Join(flag.Args(), " "))
	}

	var regionArgs []string
	if *intervals != "" {
		regionArgs = strings.Split(*intervals, ",")
	}
	stats, err := Consolidate(vcontext.Background(), consolidateFlags{
		inputPath:       flag.Arg(0),
		outPath:         *outPath,
		regionArgs:      regionArgs,
		intervalList:    *intervalList,
		strictAnomalies: *strictAnomalies,
		horizon:         *horizon,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("stats: Total Number of Variants                 %d", stats.TotalVariants)
	log.Printf("       Total Number of Nonoverlap Variants       %d", stats.NonoverlapVariants)
	log.Printf("       Total Number of Overlap Variants          %d", stats.OverlapVariants)
	log.Printf("       Total Number of New Multiallelic SNPs     %d", stats.NewMultiallelicSNPs)
	log.Printf("       Total Number of New Multiallelic Indels   %d", stats.NewMultiallelicIndels)
}
