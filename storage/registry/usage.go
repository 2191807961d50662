package registry

// Usage restricts which programs accept a given backend.
type Usage uint8

const (
	// UsageCLI marks backends available to the command-line tool.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends a store daemon may serve from.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
