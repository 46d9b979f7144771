package domain

import "context"

// ChainLink is one hop in an ownership chain: the company reached and the
// stake through which it was reached.
type ChainLink struct {
	NIPT         string   `json:"nipt"`
	HolderName   string   `json:"holder_name"`
	OwnershipPct *float64 `json:"ownership_pct,omitempty"`
	Depth        int      `json:"depth"`
}

// StakeLookup loads the current shareholder set for an identifier. Walkers
// resolve parent references lazily through it rather than assuming the graph
// is loaded up front.
type StakeLookup func(ctx context.Context, nipt string) ([]Shareholder, error)

// WalkOwnership traverses corporate holders upward from start, following
// ParentNIPT references breadth-first. Malformed data can make the ownership
// graph cyclic, so every identifier is visited at most once.
func WalkOwnership(ctx context.Context, start string, maxDepth int, lookup StakeLookup) ([]ChainLink, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	type frontierItem struct {
		nipt  string
		depth int
	}

	visited := map[string]struct{}{NormalizeNIPT(start): {}}
	frontier := []frontierItem{{nipt: NormalizeNIPT(start), depth: 0}}
	var chain []ChainLink

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]
		if item.depth >= maxDepth {
			continue
		}

		stakes, err := lookup(ctx, item.nipt)
		if err != nil {
			return nil, err
		}

		for _, stake := range stakes {
			if stake.Kind != HolderCompany || stake.ParentNIPT == "" {
				continue
			}
			parent := NormalizeNIPT(stake.ParentNIPT)
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			chain = append(chain, ChainLink{
				NIPT:         parent,
				HolderName:   stake.Name,
				OwnershipPct: stake.OwnershipPct,
				Depth:        item.depth + 1,
			})
			frontier = append(frontier, frontierItem{nipt: parent, depth: item.depth + 1})
		}
	}

	return chain, nil
}
