// Package perspective holds the political-lean vocabulary shared by discovery,
// classification and ranking: five declared source bias labels folded into
// three sides.
package perspective

import "strings"

type Side string

const (
	Left   Side = "Left"
	Center Side = "Center"
	Right  Side = "Right"
)

// Sides lists every side in blindspot priority and save order.
var Sides = []Side{Left, Center, Right}

const (
	LabelLeft        = "Left"
	LabelCenterLeft  = "Center-Left"
	LabelCenter      = "Center"
	LabelCenterRight = "Center-Right"
	LabelRight       = "Right"
)

var labels = []string{LabelLeft, LabelCenterLeft, LabelCenter, LabelCenterRight, LabelRight}

// Labels returns the accepted declared bias labels.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels)
	return out
}

// NormalizeLabel maps a case/spacing variant to its canonical label.
// ok is false when raw is not one of the five labels.
func NormalizeLabel(raw string) (string, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", "-")), "-"))
	for _, label := range labels {
		if strings.ToLower(label) == key {
			return label, true
		}
	}
	return "", false
}

// FromLabel folds a declared bias label into a side. Unknown labels are Center.
func FromLabel(label string) Side {
	canonical, _ := NormalizeLabel(label)
	switch canonical {
	case LabelLeft, LabelCenterLeft:
		return Left
	case LabelRight, LabelCenterRight:
		return Right
	default:
		return Center
	}
}

// ParseSide accepts exactly one of the three side names, case-insensitively.
func ParseSide(raw string) (Side, bool) {
	for _, side := range Sides {
		if strings.EqualFold(strings.TrimSpace(raw), string(side)) {
			return side, true
		}
	}
	return "", false
}
