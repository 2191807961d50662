package txn

// Status is the outcome of signature verification.
type Status uint8

const (
	// Malformed is the zero value so an unset Verdict never reads as valid.
	Malformed Status = iota
	Invalid
	Valid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "malformed"
	}
}

// Verdict is the three-way verification result. Err is set only for
// Malformed and carries the decode failure.
type Verdict struct {
	Status Status
	Err    error
}

// OK is the boolean view: true only for a valid signature.
func (v Verdict) OK() bool { return v.Status == Valid }

func (v Verdict) String() string {
	if v.Err != nil {
		return v.Status.String() + ": " + v.Err.Error()
	}
	return v.Status.String()
}
