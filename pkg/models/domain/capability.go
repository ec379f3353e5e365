package domain

type CapabilityState string

const (
	CapabilityLive     CapabilityState = "live"
	CapabilityDegraded CapabilityState = "degraded"
)

// Capability records whether a component runs against its real backend or a
// degraded fallback, and why.
type Capability struct {
	State  CapabilityState
	Reason string
}

func Live() Capability {
	return Capability{State: CapabilityLive}
}

func Degraded(reason string) Capability {
	return Capability{State: CapabilityDegraded, Reason: reason}
}

func (c Capability) IsLive() bool {
	return c.State == CapabilityLive
}

func (c Capability) String() string {
	if c.IsLive() {
		return string(CapabilityLive)
	}
	return string(CapabilityDegraded) + "(" + c.Reason + ")"
}
