package scd2

import (
	"fmt"
	"sort"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Violation is one broken dimension invariant.
type Violation struct {
	NaturalKey   int64  `json:"order_key"`
	SurrogateKey int64  `json:"surrogate_key,omitempty"`
	Rule         string `json:"rule"`
	Detail       string `json:"detail"`
}

// Invariant rule names.
const (
	RuleMultipleCurrent = "multiple_current"
	RuleCurrentFlag     = "valid_to_iff_not_current"
	RuleEmptyInterval   = "empty_interval"
	RuleOverlap         = "overlap"
	RuleGap             = "gap"
)

// CheckInvariants audits versions, which may span many keys, and returns
// every violation found. A gap between versions is allowed only when the
// later version re-creates the key after a delete.
func CheckInvariants(versions []model.Version) []Violation {
	byKey := make(map[int64][]model.Version)
	for _, v := range versions {
		byKey[v.NaturalKey] = append(byKey[v.NaturalKey], v)
	}

	keys := make([]int64, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []Violation
	for _, k := range keys {
		out = append(out, checkKey(k, byKey[k])...)
	}
	return out
}

func checkKey(key int64, vs []model.Version) []Violation {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].ValidFrom.Equal(vs[j].ValidFrom) {
			return vs[i].SurrogateKey < vs[j].SurrogateKey
		}
		return vs[i].ValidFrom.Before(vs[j].ValidFrom)
	})

	var out []Violation
	current := 0
	for i, v := range vs {
		if v.IsCurrent {
			current++
		}
		if v.IsCurrent != (v.ValidTo == nil) {
			out = append(out, Violation{key, v.SurrogateKey, RuleCurrentFlag,
				fmt.Sprintf("is_current=%t with valid_to set=%t", v.IsCurrent, v.ValidTo != nil)})
		}
		if v.ValidTo != nil && !v.ValidTo.After(v.ValidFrom) {
			out = append(out, Violation{key, v.SurrogateKey, RuleEmptyInterval,
				fmt.Sprintf("valid_to %s not after valid_from %s", v.ValidTo.Format(timeLayout), v.ValidFrom.Format(timeLayout))})
		}
		if i == 0 {
			continue
		}

		prev := vs[i-1]
		if prev.ValidTo == nil {
			out = append(out, Violation{key, v.SurrogateKey, RuleOverlap,
				fmt.Sprintf("begins while version %d is still open", prev.SurrogateKey)})
			continue
		}
		switch {
		case prev.ValidTo.After(v.ValidFrom):
			out = append(out, Violation{key, v.SurrogateKey, RuleOverlap,
				fmt.Sprintf("valid_from %s before predecessor valid_to %s", v.ValidFrom.Format(timeLayout), prev.ValidTo.Format(timeLayout))})
		case prev.ValidTo.Before(v.ValidFrom) && v.SourceOperation != model.OpInsert:
			out = append(out, Violation{key, v.SurrogateKey, RuleGap,
				fmt.Sprintf("valid_from %s after predecessor valid_to %s", v.ValidFrom.Format(timeLayout), prev.ValidTo.Format(timeLayout))})
		}
	}

	if current > 1 {
		out = append(out, Violation{NaturalKey: key, Rule: RuleMultipleCurrent,
			Detail: fmt.Sprintf("%d current versions", current)})
	}
	return out
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"
