package thumbnail

import "strings"

// Tier is one of the cache subdirectories.
type Tier int

const (
	// TierLarge holds thumbnails bounded to LargeSize.
	TierLarge Tier = iota
	// TierNormal holds thumbnails bounded to NormalSize, derived from Large.
	TierNormal
	// TierFail holds 1x1 sentinels for sources that cannot be thumbnailed.
	TierFail
)

// Maximum edge lengths of the Large and Normal tiers.
const (
	LargeSize  = 256
	NormalSize = 128
)

// Tiers lists every tier in directory order.
var Tiers = []Tier{TierLarge, TierNormal, TierFail}

// String returns the directory name of the tier.
func (t Tier) String() string {
	switch t {
	case TierLarge:
		return "large"
	case TierNormal:
		return "normal"
	case TierFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MaxSize returns the bounding box edge for the tier, or 0 for Fail.
func (t Tier) MaxSize() int {
	switch t {
	case TierLarge:
		return LargeSize
	case TierNormal:
		return NormalSize
	default:
		return 0
	}
}

// ParseTier accepts the directory names plus the empty string, which means
// Large.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "large":
		return TierLarge, true
	case "normal":
		return TierNormal, true
	case "fail":
		return TierFail, true
	default:
		return 0, false
	}
}
