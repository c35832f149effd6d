package discovery

import "github.com/aeroalgo/robots-sub000/internal/indicators"

// categoryOf is a small lookup helper over the process-wide kernel
// registry; unregistered names are treated as Custom so unknown names
// never silently pass a compatibility check meant for a known family.
func categoryOf(name string) indicators.Category {
	if meta, ok := indicators.MetadataFor(name); ok {
		return meta.Category
	}
	return indicators.CategoryCustom
}

func isOscillator(name string) bool { return categoryOf(name) == indicators.CategoryOscillator }
func isVolatility(name string) bool { return categoryOf(name) == indicators.CategoryVolatility }
func isVolume(name string) bool     { return categoryOf(name) == indicators.CategoryVolume }

func isTrendOrChannel(name string) bool {
	switch categoryOf(name) {
	case indicators.CategoryTrend, indicators.CategoryChannel, indicators.CategorySupportResistance:
		return true
	default:
		return false
	}
}

// eligibleForPhase1 excludes volatility, volume, and auxiliary-only
// indicators from the phase-1 minimal skeleton.
func eligibleForPhase1(name string) bool {
	if indicators.IsAuxiliaryOnly(name) {
		return false
	}
	return !isVolatility(name) && !isVolume(name)
}

// eligibleForCandidate excludes only auxiliary-only indicators (MAXFOR,
// MINFOR); volatility indicators may still be added after phase 1, as
// long as they only ever compare as a percentage of Close (enforced by
// Builder.buildConditionFor via volatilityRequiresPercentOfClose, not
// here).
func eligibleForCandidate(name string) bool {
	return !indicators.IsAuxiliaryOnly(name)
}

// compatibleIndicatorPair reports whether two indicator names may
// legally be compared to one another directly. The only rule checked
// here is that two oscillator kernels never compare to each other; every
// other pair of names is accepted. The remaining compatibility rules are
// applied by Builder.buildConditionFor and pickCompatibleIndicator, not by
// this pairwise check:
//   - a non-nested oscillator compares only with constants
//   - trend/channel indicators compare with each other, with price, or
//     with a nested indicator (an oscillator proxy once nested)
//   - volatility indicators compare only as a percentage of Close
func compatibleIndicatorPair(primary, secondary string) bool {
	if isOscillator(primary) && isOscillator(secondary) {
		return false
	}
	return true
}

// volatilityRequiresPercentOfClose reports whether name may only appear
// in a DualWithPercent condition against the Close price field.
func volatilityRequiresPercentOfClose(name string) bool {
	return isVolatility(name)
}
