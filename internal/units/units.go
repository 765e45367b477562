// Package units provides shared constants and validation for count-rate units
package units

// Unit constants
const (
	CPS = "cps"
	CPM = "cpm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{CPS, CPM}

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
	return "cps, cpm"
}

// ConvertRate converts a count rate from counts per minute to the target
// units. The instrument reports counts per minute on its time readout.
func ConvertRate(rateCPM float64, targetUnits string) float64 {
	switch targetUnits {
	case CPS:
		return rateCPM / 60.0
	case CPM:
		return rateCPM
	default:
		return rateCPM // default to cpm if unknown unit
	}
}

// Label returns the axis label for a unit.
func Label(unit string) string {
	switch unit {
	case CPS:
		return "Counts per second"
	case CPM:
		return "Counts per minute"
	default:
		return unit
	}
}
