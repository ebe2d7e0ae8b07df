// Package units provides shared constants and validation for length units
package units

// Unit constants
const (
	NM = "nm"
	UM = "um"
	PX = "px"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{NM, UM, PX}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "nm, um, px"
}

// ConvertLength converts a length from nanometers to the target units.
// Bounds and localization residuals are stored in nm; px conversion needs
// the detector pixel size in nm.
func ConvertLength(lengthNM float64, targetUnits string, pixelSizeNM float64) float64 {
	switch targetUnits {
	case NM:
		return lengthNM
	case UM:
		return lengthNM / 1000
	case PX:
		if pixelSizeNM <= 0 {
			return lengthNM
		}
		return lengthNM / pixelSizeNM
	default:
		return lengthNM
	}
}
