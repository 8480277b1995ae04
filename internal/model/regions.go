package model

import "sort"

// regionCodes is the fixed set of accepted two-letter region codes (Italian
// province abbreviations).
var regionCodes = map[string]struct{}{}

func init() {
	for _, code := range []string{
		"AG", "AL", "AN", "AO", "AP", "AQ", "AR", "AT", "AV", "BA", "BG", "BI", "BL", "BN",
		"BO", "BR", "BS", "BT", "BZ", "CA", "CB", "CE", "CH", "CL", "CN", "CO", "CR", "CS",
		"CT", "CZ", "EN", "FC", "FE", "FG", "FI", "FM", "FR", "GE", "GO", "GR", "IM", "IS",
		"KR", "LC", "LE", "LI", "LO", "LT", "LU", "MB", "MC", "ME", "MI", "MN", "MO", "MS",
		"MT", "NA", "NO", "NU", "OR", "PA", "PC", "PD", "PE", "PG", "PI", "PN", "PO", "PR",
		"PT", "PU", "PV", "PZ", "RA", "RC", "RE", "RG", "RI", "RM", "RN", "RO", "SA", "SI",
		"SO", "SP", "SR", "SS", "SU", "SV", "TA", "TE", "TN", "TO", "TP", "TR", "TS", "TV",
		"UD", "VA", "VB", "VC", "VE", "VI", "VR", "VT", "VV",
	} {
		regionCodes[code] = struct{}{}
	}
}

// ValidRegion reports whether code is an accepted region code. The code must
// already be upper-case.
func ValidRegion(code string) bool {
	_, ok := regionCodes[code]
	return ok
}

// RegionCodes returns the accepted region codes in sorted order.
func RegionCodes() []string {
	out := make([]string, 0, len(regionCodes))
	for code := range regionCodes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
