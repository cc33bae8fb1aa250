package update

// EligibilityPolicy decides whether a node takes part in updates at all.
// The combination of flags is configuration, not a hard-coded rule.
type EligibilityPolicy struct {
	// AllowFileBased lets file-based devices participate.
	AllowFileBased bool
	// AllowLegacyFlashloader lets legacy devices with a programmable application participate.
	AllowLegacyFlashloader bool
	// RequireApplication demands a programmable application on devices speaking the update protocol.
	RequireApplication bool
}

// DefaultEligibilityPolicy returns the policy used when nothing is configured.
func DefaultEligibilityPolicy() EligibilityPolicy {
	return EligibilityPolicy{
		AllowFileBased:         true,
		AllowLegacyFlashloader: true,
		RequireApplication:     false,
	}
}

// Eligible reports whether the node on the given device takes part in updates.
func (p EligibilityPolicy) Eligible(node *Node, device Device) bool {
	if device.FileBased {
		return p.AllowFileBased
	}

	hasApplication := node.HasProgrammableApplication()

	if device.Programmable {
		return hasApplication || !p.RequireApplication
	}

	if device.LegacyFlashloader {
		return p.AllowLegacyFlashloader && hasApplication
	}

	return false
}
