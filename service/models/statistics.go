package models

// periods per year, used to annualize returns and volatility
const (
	Daily     = 252
	Weekly    = 52
	Monthly   = 12
	Quarterly = 4
	Yearly    = 1
)

func ConvertFrequencyToString(inp int) string {
	switch inp {
	case Daily:
		return "days"
	case Weekly:
		return "weeks"
	case Monthly:
		return "months"
	case Quarterly:
		return "quarters"
	case Yearly:
		return "years"
	default:
		return ""
	}
}

// ConvertStringToFrequency is the inverse of ConvertFrequencyToString, ok is false for an unknown name
func ConvertStringToFrequency(name string) (int, bool) {
	switch name {
	case "days":
		return Daily, true
	case "weeks":
		return Weekly, true
	case "months":
		return Monthly, true
	case "quarters":
		return Quarterly, true
	case "years":
		return Yearly, true
	default:
		return 0, false
	}
}
