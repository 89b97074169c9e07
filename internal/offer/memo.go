package offer

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"sales-copilot/internal/domain"
)

const defaultMemoSize = 256

// Memo caches BuildGrandSlamOffer results keyed by the selection set. The key
// covers every input the sum depends on, so a hit equals a full recomputation.
type Memo struct {
	mu      sync.Mutex
	max     int
	entries map[string]domain.GrandSlamOffer
}

func NewMemo(max int) *Memo {
	if max <= 0 {
		max = defaultMemoSize
	}
	return &Memo{max: max, entries: make(map[string]domain.GrandSlamOffer)}
}

func (m *Memo) Build(items []PricedItem) domain.GrandSlamOffer {
	key := fingerprint(items)

	m.mu.Lock()
	if out, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return out
	}
	m.mu.Unlock()

	out := BuildGrandSlamOffer(items)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.max {
		// Full reset at the cap.
		m.entries = make(map[string]domain.GrandSlamOffer)
	}
	m.entries[key] = out
	return out
}

func fingerprint(items []PricedItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		var ov *domain.ItemOverrides
		if it.Overrides != nil {
			ov = it.Overrides
		} else {
			ov = &domain.ItemOverrides{}
		}
		parts = append(parts, strings.Join([]string{
			it.Item.Ref().String(),
			fmtPtr(it.Item.RoleRetailPrice),
			fmtPtr(it.Item.PerceivedValue),
			fmtPtr(it.Item.Price),
			fmtPtr(ov.RetailPrice),
			fmtPtr(ov.PerceivedValue),
		}, "|"))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
