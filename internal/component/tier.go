package component

import (
	"fmt"
	"strings"
)

// Tier is a level-of-detail bucket ordered by decreasing fidelity.
type Tier uint8

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
	TierOff
)

// TierCount is the number of tiers.
const TierCount = 4

// Tiers lists every tier from highest to lowest detail.
var Tiers = [TierCount]Tier{TierHigh, TierMedium, TierLow, TierOff}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	case TierOff:
		return "off"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier accepts the lower-case tier names.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return TierHigh, nil
	case "medium":
		return TierMedium, nil
	case "low":
		return TierLow, nil
	case "off", "":
		return TierOff, nil
	}
	return TierOff, fmt.Errorf("unknown tier %q", s)
}

// MoveState describes what the movement pipeline last did with an agent.
type MoveState uint8

const (
	MoveIdle MoveState = iota
	MoveMoving
	MoveArrived
)

func (m MoveState) String() string {
	switch m {
	case MoveIdle:
		return "idle"
	case MoveMoving:
		return "moving"
	case MoveArrived:
		return "arrived"
	default:
		return fmt.Sprintf("move(%d)", uint8(m))
	}
}
