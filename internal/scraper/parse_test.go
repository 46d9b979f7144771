package scraper

import (
	"testing"
	"time"

	"github.com/qkbintel/registry/internal/domain"
)

func TestParseOwnerBlockSingleIndividual(t *testing.T) {
	result := ParseOwnerBlock("Artan Hoxha, 51%")
	if len(result.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(result.Shareholders))
	}
	sh := result.Shareholders[0]
	if sh.Name != "Artan Hoxha" {
		t.Errorf("expected Artan Hoxha, got %q", sh.Name)
	}
	if sh.Kind != domain.HolderIndividual {
		t.Errorf("expected individual, got %s", sh.Kind)
	}
	if sh.Pct == nil || *sh.Pct != 51 {
		t.Errorf("expected 51, got %v", sh.Pct)
	}
}

func TestParseOwnerBlockRomanNumeralEntries(t *testing.T) {
	text := "I. Artan Hoxha, 51% II. Besa Kola, 29% III. Mira Dervishi, 20%"
	result := ParseOwnerBlock(text)
	if len(result.Shareholders) != 3 {
		t.Fatalf("expected 3 shareholders, got %d: %+v", len(result.Shareholders), result.Shareholders)
	}
	names := []string{"Artan Hoxha", "Besa Kola", "Mira Dervishi"}
	pcts := []float64{51, 29, 20}
	for i, sh := range result.Shareholders {
		if sh.Name != names[i] {
			t.Errorf("entry %d: expected %q, got %q", i, names[i], sh.Name)
		}
		if sh.Pct == nil || *sh.Pct != pcts[i] {
			t.Errorf("entry %d: expected %.0f%%, got %v", i, pcts[i], sh.Pct)
		}
	}
}

func TestParseOwnerBlockPercentageScopedToSegment(t *testing.T) {
	// The first entry carries no percentage; the neighbor's figure must not
	// bleed into it.
	result := ParseOwnerBlock("I. Artan Hoxha II. Besa Kola, 40%")
	if len(result.Shareholders) != 2 {
		t.Fatalf("expected 2 shareholders, got %d", len(result.Shareholders))
	}
	if result.Shareholders[0].Pct != nil {
		t.Errorf("first entry should have nil percentage, got %v", *result.Shareholders[0].Pct)
	}
	if result.Shareholders[1].Pct == nil || *result.Shareholders[1].Pct != 40 {
		t.Errorf("second entry should have 40%%, got %v", result.Shareholders[1].Pct)
	}
}

func TestParseOwnerBlockQuotedCompanyName(t *testing.T) {
	text := `"Raiffeisen SEE Region Holding GmbH", shoqëri e themeluar sipas ligjeve austriake, 100%`
	result := ParseOwnerBlock(text)
	if len(result.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(result.Shareholders))
	}
	sh := result.Shareholders[0]
	if sh.Name != "Raiffeisen SEE Region Holding GmbH" {
		t.Errorf("quoted name should win over comma split, got %q", sh.Name)
	}
	if sh.Kind != domain.HolderCompany {
		t.Errorf("GMBH marker should classify as company, got %s", sh.Kind)
	}
	if sh.Pct == nil || *sh.Pct != 100 {
		t.Errorf("expected 100%%, got %v", sh.Pct)
	}
}

func TestParseOwnerBlockCurlyQuotes(t *testing.T) {
	result := ParseOwnerBlock("“ALBANIA INVEST” SHPK, 75%")
	if len(result.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(result.Shareholders))
	}
	if result.Shareholders[0].Name != "ALBANIA INVEST" {
		t.Errorf("curly-quoted name not extracted, got %q", result.Shareholders[0].Name)
	}
}

func TestParseOwnerBlockInlineNIPT(t *testing.T) {
	result := ParseOwnerBlock("BETA GROUP SH.A (NIPT K21836229J), 30%")
	if len(result.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(result.Shareholders))
	}
	if result.Shareholders[0].ParentNIPT != "K21836229J" {
		t.Errorf("expected inline NIPT K21836229J, got %q", result.Shareholders[0].ParentNIPT)
	}
}

func TestParseOwnerBlockEmptyAndShort(t *testing.T) {
	if result := ParseOwnerBlock(""); len(result.Shareholders) != 0 || len(result.Unparsed) != 0 {
		t.Errorf("empty block should yield nothing, got %+v", result)
	}
	if result := ParseOwnerBlock("   \n "); len(result.Shareholders) != 0 {
		t.Errorf("whitespace block should yield nothing, got %+v", result)
	}
}

func TestParseShareholderList(t *testing.T) {
	items := []ListedShareholder{
		{Text: "Jolanda Trebicka - 100%", Href: "/sq/nipt/J61827501H"},
		{Text: "SOME COMPANY SH.A - 51%", Href: "/sq/nipt/K21836229J"},
	}
	result := ParseShareholderList(items)
	if len(result.Shareholders) != 2 {
		t.Fatalf("expected 2 shareholders, got %d", len(result.Shareholders))
	}
	first := result.Shareholders[0]
	if first.Name != "Jolanda Trebicka" || first.Kind != domain.HolderIndividual {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if first.Pct == nil || *first.Pct != 100 {
		t.Errorf("expected 100%%, got %v", first.Pct)
	}
	second := result.Shareholders[1]
	if second.Kind != domain.HolderCompany {
		t.Errorf("SH.A marker should classify as company, got %s", second.Kind)
	}
	if second.ParentNIPT != "K21836229J" {
		t.Errorf("href NIPT not recovered, got %q", second.ParentNIPT)
	}
}

func TestParseRepresentatives(t *testing.T) {
	reps := ParseRepresentatives("Elira Meta; Besnik Leka", "Artan Hoxha, Mira Dervishi")
	if len(reps) != 4 {
		t.Fatalf("expected 4 representatives, got %d", len(reps))
	}
	if reps[0].Name != "Elira Meta" || reps[0].Role != domain.RoleAdministrator {
		t.Errorf("unexpected first rep: %+v", reps[0])
	}
	if reps[2].Name != "Artan Hoxha" || reps[2].Role != domain.RoleBoardMember {
		t.Errorf("unexpected third rep: %+v", reps[2])
	}
}

func TestSplitNamesSemicolonPriority(t *testing.T) {
	// Semicolons separate entries whose names contain commas.
	names := SplitNames("Hoxha, Artan; Kola, Besa")
	if len(names) != 2 || names[0] != "Hoxha, Artan" || names[1] != "Kola, Besa" {
		t.Errorf("semicolon split wrong: %v", names)
	}
	names = SplitNames("Artan Hoxha, Besa Kola")
	if len(names) != 2 || names[0] != "Artan Hoxha" {
		t.Errorf("comma fallback wrong: %v", names)
	}
	if names := SplitNames("  "); names != nil {
		t.Errorf("blank input should yield nil, got %v", names)
	}
}

func TestParsePercentage(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"51%", f(51)},
		{"51.5 %", f(51.5)},
		{"holds 100% of shares", f(100)},
		{"0%", f(0)},
		{"no figure here", nil},
	}
	for _, tc := range cases {
		got := ParsePercentage(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("%q: expected nil, got %v", tc.in, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Errorf("%q: expected %v, got %v", tc.in, *tc.want, got)
		}
	}
}

func TestParseCapitalAlbanianFormat(t *testing.T) {
	got := parseCapital("14 178 593 030,00")
	if got == nil || *got != 14178593030.00 {
		t.Errorf("expected 14178593030, got %v", got)
	}
	got = parseCapital("100000 Lekë")
	if got == nil || *got != 100000 {
		t.Errorf("expected 100000, got %v", got)
	}
	if got := parseCapital("n/a"); got != nil {
		t.Errorf("expected nil for non-numeric capital, got %v", *got)
	}
}

func TestParseDateFormats(t *testing.T) {
	want := time.Date(1994, time.July, 12, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"12/07/1994", "12.07.1994", "1994-07-12", "12 July 1994", "12 Korrik 1994"} {
		got := parseDate(in)
		if got == nil || !got.Equal(want) {
			t.Errorf("%q: expected %s, got %v", in, want.Format("2006-01-02"), got)
		}
	}
	if got := parseDate("sometime in the nineties"); got != nil {
		t.Errorf("expected nil for prose, got %v", got)
	}
	if got := parseDate("30/02/2020"); got != nil {
		t.Errorf("expected nil for impossible date, got %v", got)
	}
}

func f(v float64) *float64 { return &v }

func TestParsePercentageRoundsToStoredPrecision(t *testing.T) {
	// Stakes persist in a two-decimal column; a re-parse of the same page
	// must compare equal to the stored value.
	got := ParsePercentage("16.667%")
	if got == nil || *got != 16.67 {
		t.Errorf("expected 16.67, got %v", got)
	}
	got = ParsePercentage("33.333 %")
	if got == nil || *got != 33.33 {
		t.Errorf("expected 33.33, got %v", got)
	}
}

func TestParseOwnerBlockCountsUnconfidentSegments(t *testing.T) {
	result := ParseOwnerBlock("I. Artan Hoxha, 51% II. ??")
	if len(result.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(result.Shareholders))
	}
	if len(result.Unparsed) != 1 || result.Unparsed[0] != "??" {
		t.Errorf("short fragment should be counted as unparsed, got %v", result.Unparsed)
	}

	// A segment with nothing name-like before the first comma.
	result = ParseOwnerBlock(", shoqëri e themeluar sipas ligjeve të huaja")
	if len(result.Shareholders) != 0 {
		t.Fatalf("expected no shareholders, got %+v", result.Shareholders)
	}
	if len(result.Unparsed) != 1 {
		t.Errorf("nameless segment should be counted as unparsed, got %v", result.Unparsed)
	}
}
