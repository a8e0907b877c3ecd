// Package blueprint derives integer per-LO targets from weighted blueprints
// and assembles exam forms against an item bank.
package blueprint

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Blueprint is the target distribution of assessment items across LOs.
// Weights need not sum to 1; target derivation normalizes.
type Blueprint struct {
	SchemaVersion string             `json:"schema_version"`
	ID            string             `json:"id"`
	Weights       map[string]float64 `json:"weights"`
}

// Load reads a blueprint JSON document.
func Load(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint %s: %w", path, err)
	}
	var bp Blueprint
	if err := json.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("failed to parse blueprint %s: %w", path, err)
	}
	for lo, w := range bp.Weights {
		if w < 0 {
			return nil, fmt.Errorf("blueprint %s: negative weight %v for %s", bp.ID, w, lo)
		}
	}
	return &bp, nil
}

// DeriveLoTargets converts blueprint weights into integer per-LO targets that
// sum exactly to formLength, using the largest-remainder method. Remainder
// ties are distributed cyclically in LO id order for determinism.
func DeriveLoTargets(bp *Blueprint, formLength int) map[string]int {
	targets := make(map[string]int, len(bp.Weights))
	if formLength <= 0 || len(bp.Weights) == 0 {
		return targets
	}

	los := make([]string, 0, len(bp.Weights))
	var total float64
	for lo, w := range bp.Weights {
		los = append(los, lo)
		total += w
	}
	sort.Strings(los)

	type share struct {
		lo        string
		remainder float64
	}
	shares := make([]share, 0, len(los))
	assigned := 0
	for _, lo := range los {
		var exact float64
		if total > 0 {
			exact = bp.Weights[lo] / total * float64(formLength)
		}
		base := int(exact)
		targets[lo] = base
		assigned += base
		shares = append(shares, share{lo: lo, remainder: exact - float64(base)})
	}

	// Largest remainder first; equal remainders keep id order, and leftover
	// units beyond one pass wrap cyclically.
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].lo < shares[j].lo
	})
	for i := 0; i < formLength-assigned; i++ {
		targets[shares[i%len(shares)].lo]++
	}
	return targets
}
