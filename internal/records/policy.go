package records

// DuplicatePolicy decides what ingestion does when a natural key already exists.
type DuplicatePolicy string

const (
	// SkipDuplicate keeps the first record and reports the document as skipped.
	SkipDuplicate DuplicatePolicy = "skip"
	// ReplaceDuplicate overwrites the stored record with the newest extraction.
	ReplaceDuplicate DuplicatePolicy = "replace"
)

// PolicyFor returns the duplicate handling for a kind. Candidates are keyed by
// email and keep the first record; positions are keyed by job id and the latest
// ingestion wins.
func PolicyFor(kind Kind) DuplicatePolicy {
	if kind == KindPosition {
		return ReplaceDuplicate
	}
	return SkipDuplicate
}
