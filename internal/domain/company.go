package domain

import (
	"regexp"
	"strings"
	"time"
)

// LegalForm is the normalized legal form code for a registered company.
type LegalForm string

const (
	LegalFormShpk  LegalForm = "shpk" // Sh.P.K. (LLC)
	LegalFormSha   LegalForm = "sha"  // Sh.A. (joint stock)
	LegalFormPf    LegalForm = "pf"   // Person Fizik (sole proprietor)
	LegalFormDeg   LegalForm = "deg"  // Degë e Shoqërisë së Huaj (foreign branch)
	LegalFormOther LegalForm = "other"
)

// CompanyStatus is the normalized registry status code.
type CompanyStatus string

const (
	StatusActive        CompanyStatus = "active"
	StatusSuspended     CompanyStatus = "suspended"
	StatusDissolved     CompanyStatus = "dissolved"
	StatusBankruptcy    CompanyStatus = "bankruptcy"
	StatusInLiquidation CompanyStatus = "in_liquidation"
)

// Company is one registered business keyed by its NIPT (tax identifier).
// Created on first successful parse, only ever superseded, never deleted.
type Company struct {
	NIPT             string        `json:"nipt"`
	Name             string        `json:"name"`
	NameLatin        string        `json:"name_latin,omitempty"`
	LegalForm        LegalForm     `json:"legal_form"`
	Status           CompanyStatus `json:"status"`
	ActivityDesc     string        `json:"activity_description,omitempty"`
	RegistrationDate *time.Time    `json:"registration_date,omitempty"`
	Capital          *float64      `json:"capital,omitempty"`
	City             string        `json:"city,omitempty"`
	Address          string        `json:"address,omitempty"`
	RawDocument      string        `json:"-"`
	SourceURL        string        `json:"source_url,omitempty"`
	LastScraped      time.Time     `json:"last_scraped"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// niptPattern matches Albanian NIPT/NUIS identifiers, e.g. L91234567A.
var niptPattern = regexp.MustCompile(`^[A-Za-z]\d{7,9}[A-Za-z]$`)

// ValidNIPT reports whether value has the shape of a registry identifier.
func ValidNIPT(value string) bool {
	return niptPattern.MatchString(value)
}

// NormalizeNIPT upper-cases and trims an identifier for storage and lookup.
func NormalizeNIPT(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

var legalFormMap = map[string]LegalForm{
	"shoqëri me përgjegjësi të kufizuar": LegalFormShpk,
	"shoqëri aksionare":                  LegalFormSha,
	"shoqëri aksionare sh.a":             LegalFormSha,
	"person fizik":                       LegalFormPf,
	"degë e shoqërisë së huaj":           LegalFormDeg,
}

// MapLegalForm normalizes the free-text legal form from the registry.
// Exact match first, then substring match, defaulting to "other".
func MapLegalForm(value string) LegalForm {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	if form, ok := legalFormMap[cleaned]; ok {
		return form
	}
	for key, form := range legalFormMap {
		if strings.Contains(cleaned, key) {
			return form
		}
	}
	return LegalFormOther
}

var statusMap = map[string]CompanyStatus{
	"aktiv":        StatusActive,
	"pezulluar":    StatusSuspended,
	"çregjistruar": StatusDissolved,
	"falimentuar":  StatusBankruptcy,
	"në likuidim":  StatusInLiquidation,
}

// MapStatus normalizes the free-text status from the registry, defaulting to
// active when unrecognized (the upstream only annotates non-active states
// reliably).
func MapStatus(value string) CompanyStatus {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	if status, ok := statusMap[cleaned]; ok {
		return status
	}
	for key, status := range statusMap {
		if strings.Contains(cleaned, key) {
			return status
		}
	}
	return StatusActive
}
