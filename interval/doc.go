/*Package interval implements the region-restriction machinery used by
  the consolidator and merger's -i/-I flags (Region, the colon-range
  argument syntax) and the tab-separated BEDRecord entity (spec.md §6),
  parsing either into a shared RegionSet and checking a candidate
  record's span against it.
*/
package interval
