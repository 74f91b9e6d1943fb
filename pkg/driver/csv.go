package driver

import (
	"fmt"
	"io"

	"iprange/pkg/geoannotate"
	"iprange/pkg/ipset"
)

// geoColumns renders the optional trailing "asn,asn_org,country" columns
// for a report row, computed from the first address of set s. An empty
// string is returned when annotator is nil, so callers can unconditionally
// append the result without branching on whether annotation is enabled.
func geoColumns(annotator *geoannotate.Readers, s *ipset.Set) string {
	if annotator == nil || s == nil || s.Entries() == 0 {
		return ""
	}
	a := annotator.Annotate(s.Intervals()[0].Addr)
	return fmt.Sprintf(",%d,%s,%s", a.ASN, a.ASNOrg, a.Country)
}

func geoHeader(annotator *geoannotate.Readers) string {
	if annotator == nil {
		return ""
	}
	return ",asn,asn_org,country"
}

// WriteCountUniqueMerged writes the single-row count-unique CSV
// ("entries,unique_ips") for the union of every loaded set. This mode
// reports a single merged set, so geo columns (keyed to one
// representative address) are not attached here; count-unique-all is
// where per-set geo columns apply.
func WriteCountUniqueMerged(w io.Writer, row CountRow, header bool) error {
	if header {
		fmt.Fprintln(w, "entries,unique_ips")
	}
	_, err := fmt.Fprintf(w, "%d,%d\n", row.Entries, row.UniqueIPs)
	return err
}

// WriteCountUniqueAll writes the count-unique-all CSV, optionally adding
// geo columns per set.
func WriteCountUniqueAll(w io.Writer, rows []CountRow, header bool, annotator *geoannotate.Readers) error {
	if header {
		fmt.Fprintf(w, "name,entries,unique_ips%s\n", geoHeader(annotator))
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s,%d,%d%s", r.Name, r.Entries, r.UniqueIPs, geoColumns(annotator, r.set))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteCompare writes the compare/compare-next CSV, optionally adding
// geo columns (computed from each row's first set) when annotator is
// non-nil.
func WriteCompare(w io.Writer, rows []CompareRow, header bool, annotator *geoannotate.Readers) error {
	if header {
		fmt.Fprintf(w, "name1,name2,entries1,entries2,ips1,ips2,combined_ips,common_ips%s\n", geoHeader(annotator))
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s,%s,%d,%d,%d,%d,%d,%d%s",
			r.Name1, r.Name2, r.Entries1, r.Entries2, r.IPs1, r.IPs2, r.CombinedIPs, r.CommonIPs,
			geoColumns(annotator, r.set1))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteCompareFirst writes the compare-first CSV, with the same optional
// geo columns as WriteCompare.
func WriteCompareFirst(w io.Writer, rows []FirstCompareRow, header bool, annotator *geoannotate.Readers) error {
	if header {
		fmt.Fprintf(w, "name,entries,unique_ips,common_ips%s\n", geoHeader(annotator))
	}
	for _, r := range rows {
		line := fmt.Sprintf("%s,%d,%d,%d%s", r.Name, r.Entries, r.UniqueIPs, r.CommonIPs, geoColumns(annotator, r.set))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
