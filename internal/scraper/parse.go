package scraper

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/qkbintel/registry/internal/domain"
)

// Candidate is one shareholder parsed out of a free-text block. Pct stays nil
// when the source does not disclose a percentage; it is never defaulted to
// zero or an assumed even split.
type Candidate struct {
	Name       string
	Kind       domain.HolderKind
	Pct        *float64
	ParentNIPT string
}

// RepCandidate is one representative parsed out of a free-text block.
type RepCandidate struct {
	Name string
	Role string
}

// ParseResult carries parsed shareholders plus the fragments the parser could
// not segment confidently. Unparsed fragments are not errors; they surface in
// aggregate run statistics for manual correction.
type ParseResult struct {
	Shareholders []Candidate
	Unparsed     []string
}

var (
	// Roman numeral prefixes mark multi-owner entries: "I.\t", "II. " etc.
	// Longest alternatives first to avoid partial matches inside text.
	romanMarker = regexp.MustCompile(`(?:^|[\s\n])(?:VIII|VII|VI|IV|IX|III|II|XI|XII|X|V|I)\.\s*\t?\s*`)
	// Numeric list markers: "1. ", "2.\t" at a segment boundary. The trailing
	// whitespace requirement keeps decimals like "51.5" intact.
	numericMarker = regexp.MustCompile(`(?:^|[\n;])\s*\d{1,2}\.[ \t]+`)

	// Quoted company names take precedence over keyword splitting:
	// "Raiffeisen SEE Region Holding GmbH", shoqëri e themeluar...
	quotedName = regexp.MustCompile(`^["\x{201c}]([^"\x{201d}]+)["\x{201d}]`)

	leadingName = regexp.MustCompile(`^([^,]+)`)

	percentPattern = regexp.MustCompile(`([\d.]+)\s*%`)

	// Parent identifier mentioned inline: "... NIPT L91234567A ..."
	inlineNIPT = regexp.MustCompile(`NIPT\s+([A-Z]\d{7,9}[A-Z])`)
	hrefNIPT   = regexp.MustCompile(`([A-Z]\d{7,9}[A-Z])`)

	datePattern    = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	isoDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	digitsPattern  = regexp.MustCompile(`\d+`)
	capitalClean   = regexp.MustCompile(`[^\d,]`)
)

// companyMarkers classify a holder as corporate when any of them appears in
// the name or the entry's descriptive text.
var companyMarkers = []string{
	"SH.A", "SHPK", "SH.P.K", "LLC", "GMBH", "SRL", "LTD", "INC",
	"S.R.L", "S.P.A", "NYRT", "B.V", "A.G", "HOLDING", "BANK",
	"GROUP", "CORP", "SHOQËRI", "KOMPANI",
}

var noisePrefixes = []string{"nuk ka", "no data", "sipas"}

// ParseOwnerBlock interprets the free-text "Parent Company / Owner" field.
// It never fails: fragments it cannot segment are reported in Unparsed and
// the rest of the block is still used.
//
// Formats seen upstream:
//  1. single owner: `"Raiffeisen SEE Region Holding GmbH", shoqëri e themeluar...`
//  2. enumerated owners: `I.\t"ARMAAR GROUP", shoqëri... II.\t"E D R O", shoqëri...`
//  3. plain name list: `Edmond Leka dhe Niko Leka`
func ParseOwnerBlock(text string) ParseResult {
	var result ParseResult
	if strings.TrimSpace(text) == "" {
		return result
	}

	entries := splitSegments(text)

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if len(entry) < 3 {
			result.Unparsed = append(result.Unparsed, entry)
			continue
		}

		name := extractEntryName(entry)
		if name == "" {
			result.Unparsed = append(result.Unparsed, entry)
			continue
		}
		if isNoise(name) {
			continue
		}
		if len(name) > 300 {
			name = name[:300]
		}

		candidate := Candidate{
			Name: name,
			Kind: classifyHolder(name, entry),
			// Percentage search is scoped to this segment only, so a figure
			// in a neighboring segment never bleeds across.
			Pct:        ParsePercentage(entry),
			ParentNIPT: extractInlineNIPT(entry),
		}
		result.Shareholders = append(result.Shareholders, candidate)
	}

	return result
}

// ParseShareholderList interprets the structured shareholder list section,
// used when the owner field yields nothing. Items look like
// "Jolanda Trebicka - 100%" or "SOME COMPANY SH.A - 51%".
func ParseShareholderList(items []ListedShareholder) ParseResult {
	var result ParseResult

	for _, item := range items {
		text := strings.TrimSpace(item.Text)
		if len(text) < 2 {
			continue
		}

		// Split on the last " - " to separate name from percentage.
		name := text
		var pct *float64
		if idx := strings.LastIndex(text, " - "); idx > 0 {
			name = strings.TrimSpace(text[:idx])
			pct = ParsePercentage(text[idx+3:])
		}
		if name == "" {
			result.Unparsed = append(result.Unparsed, text)
			continue
		}
		if isNoise(name) {
			continue
		}
		if len(name) > 300 {
			name = name[:300]
		}

		candidate := Candidate{
			Name: name,
			Kind: classifyHolder(name, ""),
			Pct:  pct,
		}
		if item.Href != "" {
			if match := hrefNIPT.FindStringSubmatch(item.Href); match != nil {
				candidate.ParentNIPT = match[1]
			}
		}
		result.Shareholders = append(result.Shareholders, candidate)
	}

	return result
}

// ParseRepresentatives splits the administrator and board-member blocks into
// role-tagged names.
func ParseRepresentatives(adminText, boardText string) []RepCandidate {
	var reps []RepCandidate
	for _, name := range SplitNames(adminText) {
		reps = append(reps, RepCandidate{Name: name, Role: domain.RoleAdministrator})
	}
	for _, name := range SplitNames(boardText) {
		reps = append(reps, RepCandidate{Name: name, Role: domain.RoleBoardMember})
	}
	return reps
}

// splitSegments cuts the block on enumeration markers: Roman numerals first,
// then numeric markers, treating the whole block as one segment when neither
// is present.
func splitSegments(text string) []string {
	if entries := romanMarker.Split(text, -1); len(entries) > 1 {
		return entries
	}
	if entries := numericMarker.Split(text, -1); len(entries) > 1 {
		return entries
	}
	return []string{text}
}

// extractEntryName pulls the holder name from one segment. Quoted substrings
// are literal names and take precedence; otherwise the text before the first
// comma separates the name from the descriptive phrase, e.g.
// "OTP Bank Nyrt, një shoqëri..." -> "OTP Bank Nyrt". Returns "" when the
// segment yields nothing name-like, so the caller can count it as unparsed.
func extractEntryName(entry string) string {
	var name string
	if match := quotedName.FindStringSubmatch(entry); match != nil {
		name = strings.TrimSpace(match[1])
	} else if match := leadingName.FindStringSubmatch(entry); match != nil {
		name = match[1]
		if len(name) > 100 {
			name = name[:100]
		}
		name = strings.TrimSpace(name)
	}
	if len(name) < 3 {
		return ""
	}
	return name
}

func classifyHolder(name, entry string) domain.HolderKind {
	scope := entry
	if len(scope) > 200 {
		scope = scope[:200]
	}
	fullText := strings.ToUpper(name + " " + scope)
	for _, marker := range companyMarkers {
		if strings.Contains(fullText, marker) {
			return domain.HolderCompany
		}
	}
	return domain.HolderIndividual
}

func isNoise(name string) bool {
	lowered := strings.ToLower(name)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

func extractInlineNIPT(entry string) string {
	if match := inlineNIPT.FindStringSubmatch(entry); match != nil {
		return match[1]
	}
	return ""
}

// SplitNames splits a string of names on semicolons, falling back to commas.
func SplitNames(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var parts []string
	if strings.Contains(value, ";") {
		parts = strings.Split(value, ";")
	} else {
		parts = strings.Split(value, ",")
	}

	var names []string
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if len(name) > 1 {
			names = append(names, name)
		}
	}
	return names
}

// ParsePercentage extracts a percentage from text like "51%" or "51.5 %",
// rounded to two decimals to match the stored column precision.
func ParsePercentage(value string) *float64 {
	match := percentPattern.FindStringSubmatch(value)
	if match == nil {
		return nil
	}
	pct, err := strconv.ParseFloat(strings.Trim(match[1], "."), 64)
	if err != nil {
		return nil
	}
	pct = math.Round(pct*100) / 100
	return &pct
}

// parseCapital extracts a numeric capital value from the Albanian format
// "14 178 593 030,00" (spaces as thousands separators, comma as decimal).
func parseCapital(value string) *float64 {
	cleaned := capitalClean.ReplaceAllString(value, "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	if cleaned == "" || cleaned == "." {
		return nil
	}
	capital, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &capital
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"janar": time.January, "shkurt": time.February, "mars": time.March,
	"prill": time.April, "maj": time.May, "qershor": time.June,
	"korrik": time.July, "gusht": time.August, "shtator": time.September,
	"tetor": time.October, "nëntor": time.November, "dhjetor": time.December,
}

// parseDate tries DD/MM/YYYY, DD.MM.YYYY, YYYY-MM-DD, then written month
// names in English or Albanian. Returns nil when nothing matches.
func parseDate(value string) *time.Time {
	if match := datePattern.FindStringSubmatch(value); match != nil {
		if date := buildDate(match[3], match[2], match[1]); date != nil {
			return date
		}
	}

	if match := isoDatePattern.FindStringSubmatch(value); match != nil {
		if date := buildDate(match[1], match[2], match[3]); date != nil {
			return date
		}
	}

	lowered := strings.ToLower(value)
	for name, month := range monthNames {
		if !strings.Contains(lowered, name) {
			continue
		}
		nums := digitsPattern.FindAllString(value, -1)
		if len(nums) < 2 {
			continue
		}
		day, _ := strconv.Atoi(nums[0])
		if day > 31 {
			day, _ = strconv.Atoi(nums[1])
		}
		year, _ := strconv.Atoi(nums[len(nums)-1])
		if date := makeDate(year, month, day); date != nil {
			return date
		}
	}

	return nil
}

func buildDate(yearStr, monthStr, dayStr string) *time.Time {
	year, _ := strconv.Atoi(yearStr)
	month, _ := strconv.Atoi(monthStr)
	day, _ := strconv.Atoi(dayStr)
	if month < 1 || month > 12 {
		return nil
	}
	return makeDate(year, time.Month(month), day)
}

func makeDate(year int, month time.Month, day int) *time.Time {
	if year < 1800 || year > 2200 || day < 1 || day > 31 {
		return nil
	}
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject arithmetic overflow like Feb 30 -> Mar 2.
	if date.Day() != day || date.Month() != month {
		return nil
	}
	return &date
}
