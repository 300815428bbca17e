package cache

// Hooks report high-signal cache events. They run on hot paths and must not
// block; wrap slow implementations with hooks/async.
type Hooks interface {
	// An entry was deleted on read. reason is one of "corrupt",
	// "gen_mismatch", "expired", "value_decode".
	SelfHealSingle(storageKey, reason string)

	// A bulk entry was not used and the read fell back to singles. reason is
	// one of "decode_error", "expired", "invalid_or_stale", "snapshot_error".
	BulkRejected(namespace string, requested int, reason string)

	// The provider dropped a write (ok=false).
	ProviderSetRejected(storageKey string, isBulk bool)

	// A write was skipped because the generation moved since the snapshot,
	// i.e. the response raced an invalidation.
	StaleWriteSkipped(storageKey string)

	// count is the number of keys in the failed snapshot.
	GenSnapshotError(count int, err error)
	GenBumpError(storageKey string, err error)

	// Both bump and delete failed during Invalidate.
	InvalidateOutage(key string, bumpErr, delErr error)

	// The provider is shared between processes but generations are local, so
	// other processes may serve entries this one invalidated.
	LocalGenWithSharedProvider(namespace string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHealSingle(string, string)         {}
func (NopHooks) BulkRejected(string, int, string)      {}
func (NopHooks) ProviderSetRejected(string, bool)      {}
func (NopHooks) StaleWriteSkipped(string)              {}
func (NopHooks) GenSnapshotError(int, error)           {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
func (NopHooks) LocalGenWithSharedProvider(string)     {}
