package quickunlock

// State tracks the device's quick-unlock enrollment. Every unlock attempt
// passes through Unlocking and Unlocked or Failed, then returns to Enrolled.
type State int

const (
	NotEnrolled State = iota
	Enrolling
	Enrolled
	Unlocking
	Unlocked
	Failed
)

func (s State) String() string {
	switch s {
	case NotEnrolled:
		return "NOT_ENROLLED"
	case Enrolling:
		return "ENROLLING"
	case Enrolled:
		return "ENROLLED"
	case Unlocking:
		return "UNLOCKING"
	case Unlocked:
		return "UNLOCKED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how the device key is kept at rest.
type Mode string

const (
	// ModeBound wraps the device key under a key derived from the
	// ceremony's PRF output, so the MEK is unreachable without a
	// completed ceremony.
	ModeBound Mode = "bound"
	// ModeRaw stores the device key directly and uses the ceremony only
	// as a gate.
	ModeRaw Mode = "raw"
)
