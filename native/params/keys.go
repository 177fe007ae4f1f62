package params

const (
	// KeySettings stores the active protocol settings snapshot.
	KeySettings = "system/settings"
	// KeyUpdates stores the per-setting rate limit records.
	KeyUpdates = "system/updates"
)
