package expiry

// Policy decides the time-to-live of cache entries.
// Each method returns false when the current expiration must be kept.
// Implementations must be safe for concurrent use.
type Policy interface {
	// ForCreation returns the duration applied to a newly created entry.
	// Returning false is treated as Eternal.
	ForCreation() (Duration, bool)

	// ForAccess returns the duration applied when an entry is read.
	ForAccess() (Duration, bool)

	// ForUpdate returns the duration applied when an entry is overwritten.
	ForUpdate() (Duration, bool)
}

// EternalPolicy is a policy whose entries never expire.
type EternalPolicy struct{}

var _ Policy = EternalPolicy{}

// ForCreation returns Eternal.
func (EternalPolicy) ForCreation() (Duration, bool) { return Eternal, true }

// ForAccess keeps the current expiration.
func (EternalPolicy) ForAccess() (Duration, bool) { return Duration{}, false }

// ForUpdate keeps the current expiration.
func (EternalPolicy) ForUpdate() (Duration, bool) { return Duration{}, false }

// CreatedPolicy expires entries a fixed duration after they were created.
// Accesses and updates do not change the expiration.
type CreatedPolicy struct {
	Duration Duration
}

var _ Policy = CreatedPolicy{}

// ForCreation returns the configured duration.
func (p CreatedPolicy) ForCreation() (Duration, bool) { return p.Duration, true }

// ForAccess keeps the current expiration.
func (CreatedPolicy) ForAccess() (Duration, bool) { return Duration{}, false }

// ForUpdate keeps the current expiration.
func (CreatedPolicy) ForUpdate() (Duration, bool) { return Duration{}, false }

// AccessedPolicy expires entries a fixed duration after they were created or last read.
type AccessedPolicy struct {
	Duration Duration
}

var _ Policy = AccessedPolicy{}

// ForCreation returns the configured duration.
func (p AccessedPolicy) ForCreation() (Duration, bool) { return p.Duration, true }

// ForAccess returns the configured duration.
func (p AccessedPolicy) ForAccess() (Duration, bool) { return p.Duration, true }

// ForUpdate keeps the current expiration.
func (AccessedPolicy) ForUpdate() (Duration, bool) { return Duration{}, false }

// ModifiedPolicy expires entries a fixed duration after they were created or last updated.
type ModifiedPolicy struct {
	Duration Duration
}

var _ Policy = ModifiedPolicy{}

// ForCreation returns the configured duration.
func (p ModifiedPolicy) ForCreation() (Duration, bool) { return p.Duration, true }

// ForAccess keeps the current expiration.
func (ModifiedPolicy) ForAccess() (Duration, bool) { return Duration{}, false }

// ForUpdate returns the configured duration.
func (p ModifiedPolicy) ForUpdate() (Duration, bool) { return p.Duration, true }

// TouchedPolicy expires entries a fixed duration after they were last created, read or updated.
type TouchedPolicy struct {
	Duration Duration
}

var _ Policy = TouchedPolicy{}

// ForCreation returns the configured duration.
func (p TouchedPolicy) ForCreation() (Duration, bool) { return p.Duration, true }

// ForAccess returns the configured duration.
func (p TouchedPolicy) ForAccess() (Duration, bool) { return p.Duration, true }

// ForUpdate returns the configured duration.
func (p TouchedPolicy) ForUpdate() (Duration, bool) { return p.Duration, true }

// FunctionsPolicy is a policy built from functions.
// A nil function keeps the current expiration, and a nil CreationFunc is eternal.
type FunctionsPolicy struct {
	CreationFunc func() (Duration, bool)
	AccessFunc   func() (Duration, bool)
	UpdateFunc   func() (Duration, bool)
}

var _ Policy = (*FunctionsPolicy)(nil)

// ForCreation calls CreationFunc.
func (p *FunctionsPolicy) ForCreation() (Duration, bool) {
	if p.CreationFunc == nil {
		return Eternal, true
	}
	return p.CreationFunc()
}

// ForAccess calls AccessFunc.
func (p *FunctionsPolicy) ForAccess() (Duration, bool) {
	if p.AccessFunc == nil {
		return Duration{}, false
	}
	return p.AccessFunc()
}

// ForUpdate calls UpdateFunc.
func (p *FunctionsPolicy) ForUpdate() (Duration, bool) {
	if p.UpdateFunc == nil {
		return Duration{}, false
	}
	return p.UpdateFunc()
}
