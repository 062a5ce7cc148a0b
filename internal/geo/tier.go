package geo

import "strings"

// TrafficTier classifies a street segment by expected traffic load.
type TrafficTier string

const (
	TierNone       TrafficTier = ""
	TierPedestrian TrafficTier = "pedestrian"
	TierLow        TrafficTier = "low_traffic"
	TierMedium     TrafficTier = "medium_traffic"
	TierHigh       TrafficTier = "high_traffic"
)

// Tiers lists street tiers from widest to narrowest buffer.
var Tiers = []TrafficTier{TierHigh, TierMedium, TierLow, TierPedestrian}

// Valid reports whether t is one of the street tiers.
func (t TrafficTier) Valid() bool {
	for _, v := range Tiers {
		if t == v {
			return true
		}
	}
	return false
}

// ClassifyHighway maps an OSM highway tag value to a traffic tier.
// Unrecognised values are treated as low traffic.
func ClassifyHighway(highway string) TrafficTier {
	switch strings.TrimSuffix(strings.ToLower(highway), "_link") {
	case "motorway", "trunk", "primary":
		return TierHigh
	case "secondary", "tertiary":
		return TierMedium
	case "footway", "pedestrian", "path", "steps", "cycleway", "track", "bridleway", "corridor", "sidewalk", "crossing":
		return TierPedestrian
	default:
		return TierLow
	}
}

// ClassifyStreets assigns a tier to every feature that does not carry a known one,
// using its highway tag.
func ClassifyStreets(c Collection) Collection {
	out := make(Collection, len(c))
	for i, f := range c {
		if !f.Tier.Valid() {
			f.Tier = ClassifyHighway(f.Tags["highway"])
		}
		out[i] = f
	}
	return out
}
