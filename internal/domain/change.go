package domain

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// StakeSnapshot is the structural identity of one shareholder position inside
// a change record: holder name, kind, and percentage. Two ownership sets are
// considered equal exactly when their snapshots are equal as sets.
type StakeSnapshot struct {
	Name string     `json:"name"`
	Kind HolderKind `json:"kind"`
	Pct  *float64   `json:"pct,omitempty"`
}

// RepresentativeSnapshot is the structural identity of one representative
// inside a change record.
type RepresentativeSnapshot struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// OwnershipChange is one immutable entry in the change ledger: the before and
// after ownership/representative sets observed for a company at a point in
// time. Never mutated or deleted.
type OwnershipChange struct {
	ID          uuid.UUID                `json:"id"`
	CompanyNIPT string                   `json:"company_nipt"`
	ObservedAt  time.Time                `json:"observed_at"`
	Description string                   `json:"description"`
	OldStakes   []StakeSnapshot          `json:"old_stakes"`
	NewStakes   []StakeSnapshot          `json:"new_stakes"`
	OldReps     []RepresentativeSnapshot `json:"old_representatives"`
	NewReps     []RepresentativeSnapshot `json:"new_representatives"`
	Source      string                   `json:"source"`
	CreatedAt   time.Time                `json:"created_at"`
}

// SnapshotStakes projects current shareholder rows into snapshots, sorted for
// deterministic storage and comparison.
func SnapshotStakes(shareholders []Shareholder) []StakeSnapshot {
	snapshots := make([]StakeSnapshot, 0, len(shareholders))
	for _, sh := range shareholders {
		snapshots = append(snapshots, StakeSnapshot{
			Name: sh.Name,
			Kind: sh.Kind,
			Pct:  sh.OwnershipPct,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Name != snapshots[j].Name {
			return snapshots[i].Name < snapshots[j].Name
		}
		return snapshots[i].key() < snapshots[j].key()
	})
	return snapshots
}

// SnapshotRepresentatives projects current representative rows into
// snapshots, sorted for deterministic storage and comparison.
func SnapshotRepresentatives(reps []Representative) []RepresentativeSnapshot {
	snapshots := make([]RepresentativeSnapshot, 0, len(reps))
	for _, rep := range reps {
		snapshots = append(snapshots, RepresentativeSnapshot{Name: rep.Name, Role: rep.Role})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Name != snapshots[j].Name {
			return snapshots[i].Name < snapshots[j].Name
		}
		return snapshots[i].Role < snapshots[j].Role
	})
	return snapshots
}

func (s StakeSnapshot) key() string {
	return s.Name + "|" + string(s.Kind) + "|" + formatPct(s.Pct)
}

// formatPct renders a nullable percentage deterministically; nil stays
// distinct from zero so an undisclosed stake never equals a 0% stake.
func formatPct(pct *float64) string {
	if pct == nil {
		return ""
	}
	return strconv.FormatFloat(*pct, 'f', -1, 64)
}

// EqualStakeSets reports whether two ownership sets are structurally equal,
// ignoring order and duplicates.
func EqualStakeSets(a, b []StakeSnapshot) bool {
	return equalKeySets(stakeKeySet(a), stakeKeySet(b))
}

// EqualRepresentativeSets reports whether two representative sets are
// structurally equal, ignoring order and duplicates.
func EqualRepresentativeSets(a, b []RepresentativeSnapshot) bool {
	setA := make(map[string]struct{}, len(a))
	for _, rep := range a {
		setA[rep.Name+"|"+rep.Role] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, rep := range b {
		setB[rep.Name+"|"+rep.Role] = struct{}{}
	}
	return equalKeySets(setA, setB)
}

func stakeKeySet(snapshots []StakeSnapshot) map[string]struct{} {
	set := make(map[string]struct{}, len(snapshots))
	for _, s := range snapshots {
		set[s.key()] = struct{}{}
	}
	return set
}

func equalKeySets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}
