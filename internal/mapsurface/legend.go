// Package mapsurface renders observations as map markers and turns map
// gestures into center-change and location-selection events.
package mapsurface

import "treewalk/pkg/domain"

var conditionColors = map[domain.Condition]string{
	domain.ConditionGood:     "#16a34a",
	domain.ConditionFair:     "#eab308",
	domain.ConditionCritical: "#dc2626",
	domain.ConditionDead:     "#0ea5e9",
}

// ColorFor returns the marker color of c. Unknown conditions use the Good color.
func ColorFor(c domain.Condition) string {
	if color, ok := conditionColors[c]; ok {
		return color
	}
	return conditionColors[domain.ConditionGood]
}

// LegendEntry pairs a condition label with its marker color.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend lists the conditions in display order.
func Legend() []LegendEntry {
	conds := domain.Conditions()
	out := make([]LegendEntry, 0, len(conds))
	for _, c := range conds {
		out = append(out, LegendEntry{Label: string(c), Color: conditionColors[c]})
	}
	return out
}
