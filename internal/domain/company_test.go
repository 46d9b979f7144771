package domain

import "testing"

func TestValidNIPT(t *testing.T) {
	valid := []string{"J61827501H", "L91234567A", "K123456789B"}
	for _, v := range valid {
		if !ValidNIPT(v) {
			t.Errorf("%q should be valid", v)
		}
	}
	invalid := []string{"", "12345678", "J6182750", "J61827501", "61827501H", "J61827501HX9"}
	for _, v := range invalid {
		if ValidNIPT(v) {
			t.Errorf("%q should be invalid", v)
		}
	}
}

func TestNormalizeNIPT(t *testing.T) {
	if got := NormalizeNIPT("  j61827501h "); got != "J61827501H" {
		t.Errorf("expected J61827501H, got %q", got)
	}
}

func TestMapLegalForm(t *testing.T) {
	cases := map[string]LegalForm{
		"Shoqëri me Përgjegjësi të Kufizuar":        LegalFormShpk,
		"Shoqëri Aksionare":                         LegalFormSha,
		"Person Fizik":                              LegalFormPf,
		"Degë e Shoqërisë së Huaj":                  LegalFormDeg,
		"Shoqëri me Përgjegjësi të Kufizuar SH.P.K": LegalFormShpk,
		"something else entirely":                   LegalFormOther,
	}
	for in, want := range cases {
		if got := MapLegalForm(in); got != want {
			t.Errorf("MapLegalForm(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[string]CompanyStatus{
		"Aktiv":         StatusActive,
		"Pezulluar":     StatusSuspended,
		"Çregjistruar":  StatusDissolved,
		"Falimentuar":   StatusBankruptcy,
		"Në Likuidim":   StatusInLiquidation,
		"anything else": StatusActive,
	}
	for in, want := range cases {
		if got := MapStatus(in); got != want {
			t.Errorf("MapStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
