package offer

import (
	"sort"

	"sales-copilot/internal/domain"
)

// Group is one (content type, offer role) bucket for display.
type Group struct {
	ContentType domain.ContentType `json:"contentType"`
	Role        domain.OfferRole   `json:"role"`
	Items       []PricedItem       `json:"items"`
}

// GroupByRole partitions items by content type and normalized offer role.
// Items without a declared role land in the unclassified bucket. Groups are
// ordered by content type, then by declared role order with unclassified
// last; items keep their input order within a group.
func GroupByRole(items []PricedItem) []Group {
	type key struct {
		ct   domain.ContentType
		role domain.OfferRole
	}
	idx := map[key]int{}
	var groups []Group
	for _, it := range items {
		k := key{ct: it.Item.ContentType, role: it.Item.OfferRole.Normalize()}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, Group{ContentType: k.ct, Role: k.role})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].ContentType != groups[j].ContentType {
			return groups[i].ContentType < groups[j].ContentType
		}
		return roleRank(groups[i].Role) < roleRank(groups[j].Role)
	})
	return groups
}

func roleRank(r domain.OfferRole) int {
	for i, d := range domain.DeclaredRoles {
		if d == r {
			return i
		}
	}
	return len(domain.DeclaredRoles)
}
