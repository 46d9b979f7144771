package domain

import "time"

// HolderKind distinguishes individual from corporate shareholders.
type HolderKind string

const (
	HolderIndividual HolderKind = "individual"
	HolderCompany    HolderKind = "company"
)

// Shareholder is one current shareholder position on a company. The set for a
// company is replaced wholesale on each reconciliation pass; history lives in
// OwnershipChange, not here.
type Shareholder struct {
	CompanyNIPT  string     `json:"company_nipt"`
	Kind         HolderKind `json:"kind"`
	Name         string     `json:"name"`
	OwnershipPct *float64   `json:"ownership_pct,omitempty"`
	// ParentNIPT links the holder to another tracked company when the holder
	// is itself registered. Exact identifier or exact name match only; the
	// link is resolved lazily when walking ownership chains.
	ParentNIPT string    `json:"parent_nipt,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Representative is one current legal representative of a company. Same
// replace-on-reconcile lifecycle as Shareholder.
type Representative struct {
	CompanyNIPT string    `json:"company_nipt"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	RoleAdministrator = "Administrator"
	RoleBoardMember   = "Board Member"
)
