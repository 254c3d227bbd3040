package types

// HistoryRecord holds the per-track play/skip statistics the firmware writes
// back during use. Identity is the device-relative track path. Records are
// read before a regeneration and carried forward for tracks that survive;
// new tracks start from the zero value.
type HistoryRecord struct {
	BookmarkTime int32
	PlayCount    int32
	LastPlayed   int32
	SkipCount    int32
	LastSkipped  int32
}
