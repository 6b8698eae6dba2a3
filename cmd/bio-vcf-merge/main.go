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
bio-vcf-merge performs an N-way synchronized merge of per-sample candidate
variant streams, aggregating evidence read counts across samples at each
shared position.
*/

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/grailbio/vtconsolidate/interval"
	"github.com/grailbio/vtconsolidate/merge"
)

var (
	inputListPath    = flag.String("L", "", "File containing list of input VCF files")
	outPath          = flag.String("o", "-", "Output VCF file [-]")
	snpScoreCutoff   = flag.Float64("c", merge.DefaultScoreCutoff, "SNP variant score cutoff")
	indelScoreCutoff = flag.Float64("d", merge.DefaultScoreCutoff, "Indel variant score cutoff")
	intervals        = flag.String("i", "", "Comma-separated list of regions to restrict processing to []")
	intervalList     = flag.String("I", "", "File containing a list of intervals to restrict processing to []")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS] <in1.vcf> <in2.vcf> ...\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// parseInputFiles combines positional arguments with the contents of
// -L, matching spec.md §6's "inputs may come from positional arguments,
// -L, or both" convention.
func parseInputFiles(ctx context.Context, positional []string, listPath string) ([]string, error) {
	paths := append([]string(nil), positional...)
	if listPath == "" {
		return paths, nil
	}
	f, err := file.Open(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("bio-vcf-merge: opening %s: %w", listPath, err)
	}
	defer f.Close(ctx)
	sc := bufio.NewScanner(f.Reader(ctx))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("bio-vcf-merge: reading %s: %w", listPath, err)
	}
	return paths, nil
}

// mergeFlags collects the options main() parses from the command line,
// kept apart from flag.Parse so Merge can be driven directly by tests
// (the same split the teacher uses in cmd/bio-fusion between
// fusionFlags and DetectFusion).
type mergeFlags struct {
	inputPaths       []string
	inputListPath    string
	outPath          string
	snpScoreCutoff   float64
	indelScoreCutoff float64
	regionArgs       []string
	intervalList     string
}

// Merge runs one full merge pass: resolve the input file list, open the
// synchronized reader, apply the region restriction (if any), and merge
// every batch into outPath. It returns the run's final Stats so a
// caller (main or a test) can report or assert on them.
func Merge(ctx context.Context, f mergeFlags) (merge.Stats, error) {
	inputPaths, err := parseInputFiles(ctx, f.inputPaths, f.inputListPath)
	if err != nil {
		return merge.Stats{}, err
	}
	if len(inputPaths) == 0 {
		return merge.Stats{}, fmt.Errorf("bio-vcf-merge: no input files given; provide positional arguments, -L, or both")
	}

	regions, err := interval.NewRegionSet(ctx, f.regionArgs, f.intervalList)
	if err != nil {
		return merge.Stats{}, err
	}

	log.Debug.Printf("options: input files %v, output %s, snp cutoff %v, indel cutoff %v", inputPaths, f.outPath, f.snpScoreCutoff, f.indelScoreCutoff)

	sr, err := merge.OpenSyncedReader(ctx, inputPaths)
	if err != nil {
		return merge.Stats{}, err
	}
	defer sr.Close()

	sink, err := vcf.NewWriter(ctx, f.outPath)
	if err != nil {
		return merge.Stats{}, err
	}

	m := merge.New(sr.Header, sink, merge.Config{
		SNPScoreCutoff:   f.snpScoreCutoff,
		IndelScoreCutoff: f.indelScoreCutoff,
	})
	if err := sink.WriteHeader(sr.Header); err != nil {
		return merge.Stats{}, err
	}

	if regions.Empty() {
		err = m.Run(sr)
	} else {
		err = runFiltered(m, sr, regions)
	}
	if err != nil {
		return merge.Stats{}, err
	}

	if err := sink.Close(); err != nil {
		return merge.Stats{}, err
	}
	return m.Stats, nil
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	var regionArgs []string
	if *intervals != "" {
		regionArgs = strings.Split(*intervals, ",")
	}
	stats, err := Merge(vcontext.Background(), mergeFlags{
		inputPaths:       flag.Args(),
		inputListPath:    *inputListPath,
		outPath:          *outPath,
		snpScoreCutoff:   *snpScoreCutoff,
		indelScoreCutoff: *indelScoreCutoff,
		regionArgs:       regionArgs,
		intervalList:     *intervalList,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("stats: Total Number of Candidate SNPs                 %d", stats.CandidateSNPs)
	log.Printf("       Total Number of Candidate Indels               %d", stats.CandidateIndels)
}

// runFiltered drives the synchronized reader one batch at a time so
// each batch's position can be checked against -i/-I before it reaches
// the aggregation stage; merge.Merger.Run itself is region-agnostic.
func runFiltered(m *merge.Merger, sr *merge.SyncedReader, regions *interval.RegionSet) error {
	for {
		batch, ok, err := sr.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		anchor := batch[0].Record
		if !regions.Overlaps(anchor.Chrom(sr.Header), anchor.Pos, anchor.Pos) {
			continue
		}
		if err := m.ProcessBatch(batch); err != nil {
			return err
		}
	}
}
