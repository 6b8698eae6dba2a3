package consolidate

import (
	"github.com/grailbio/vtconsolidate/encoding/vcf"
	"github.com/grailbio/vtconsolidate/variant"
)

// applyOverlapRule implements the overlap rule table of spec.md §4.1 for
// one interacting pair (v, u) already confirmed to overlap. v is the
// just-ingested record; u is the buffered record it overlaps.
//
// Two of the cross/same-type combinations reproduce the source
// anomalies documented in spec.md §9 when cfg.StrictAnomalies is set
// (the CLI default):
//
//   - SNP vs VNTR: u's n_overlap_vntr increment is misattributed to
//     v.NOverlapSNP a second time instead.
//   - VNTR vs VNTR: the arriving VNTR's own counter increment lands on
//     NOverlapIndel instead of NOverlapVNTR.
func (c *Consolidator) applyOverlapRule(v, u *variant.Variant) {
	switch v.Type {
	case vcf.SNP:
		switch u.Type {
		case vcf.SNP:
			c.maybeSpawnContainer(v, u, FilterOverlapSNP)
			v.Record.AddFilter(FilterOverlapSNP)
			v.NOverlapSNP++
			u.Record.AddFilter(FilterOverlapSNP)
			u.NOverlapSNP++
		case vcf.Indel:
			v.Record.AddFilter(FilterOverlapIndel)
			v.NOverlapIndel++
			u.Record.AddFilter(FilterOverlapSNP)
			u.NOverlapSNP++
		case vcf.VNTR:
			v.Record.AddFilter(FilterOverlapVNTR)
			v.NOverlapVNTR++
			u.Record.AddFilter(FilterOverlapSNP)
			if c.cfg.StrictAnomalies {
				// anomaly (spec.md §9): credited to v a second time
				// instead of to u.NOverlapVNTR.
				v.NOverlapSNP++
			} else {
				u.NOverlapVNTR++
			}
		case vcf.Undefined:
			u.Children = append(u.Children, v.Record.Clone())
			u.NOverlapSNP++
		}

	case vcf.Indel:
		switch u.Type {
		case vcf.SNP:
			v.Record.AddFilter(FilterOverlapSNP)
			v.NOverlapSNP++
			u.Record.AddFilter(FilterOverlapIndel)
			u.NOverlapIndel++
		case vcf.Indel:
			c.maybeSpawnContainer(v, u, FilterOverlapIndel)
			v.Record.AddFilter(FilterOverlapIndel)
			v.NOverlapIndel++
			u.Record.AddFilter(FilterOverlapIndel)
			u.NOverlapIndel++
		case vcf.VNTR:
			v.Record.AddFilter(FilterOverlapVNTR)
			v.NOverlapVNTR++
			u.Record.AddFilter(FilterOverlapIndel)
			u.NOverlapIndel++
		case vcf.Undefined:
			u.Children = append(u.Children, v.Record.Clone())
			u.NOverlapIndel++
		}

	case vcf.VNTR:
		switch u.Type {
		case vcf.SNP:
			v.Record.AddFilter(FilterOverlapSNP)
			v.NOverlapSNP++
			u.Record.AddFilter(FilterOverlapVNTR)
			u.NOverlapVNTR++
		case vcf.Indel:
			v.Record.AddFilter(FilterOverlapIndel)
			v.NOverlapIndel++
			u.Record.AddFilter(FilterOverlapVNTR)
			u.NOverlapVNTR++
		case vcf.VNTR:
			v.Record.AddFilter(FilterOverlapVNTR)
			if c.cfg.StrictAnomalies {
				// anomaly (spec.md §9): credited to NOverlapIndel
				// instead of NOverlapVNTR.
				v.NOverlapIndel++
			} else {
				v.NOverlapVNTR++
			}
			u.Record.AddFilter(FilterOverlapVNTR)
			u.NOverlapVNTR++
		case vcf.Undefined:
			u.Children = append(u.Children, v.Record.Clone())
			u.NOverlapVNTR++
		}
	}
}

// maybeSpawnContainer implements the multi-allelic synthesis side
// effect of the same-type rows (SNP/SNP, Indel/Indel): if u has not yet
// been filtered by anything, a new pending Undefined container is
// pushed to the front of the window holding both records as children.
// The gate is evaluated against u's filter state *before* this
// interaction's own filter additions, matching the source's evaluation
// order exactly.
func (c *Consolidator) maybeSpawnContainer(v, u *variant.Variant, sameTypeFilter string) {
	if u.Record.NFilters() != 0 {
		return
	}
	beg1, end1 := u.Beg1, u.End1
	if v.Beg1 < beg1 {
		beg1 = v.Beg1
	}
	if v.End1 > end1 {
		end1 = v.End1
	}
	container := variant.NewMultiallelicContainer(u.Record.Clone(), v.Record.Clone(), u.RID, beg1, end1)
	switch sameTypeFilter {
	case FilterOverlapSNP:
		container.NOverlapSNP = 2
	case FilterOverlapIndel:
		container.NOverlapIndel = 2
	}
	c.win.PushFront(container)
}
