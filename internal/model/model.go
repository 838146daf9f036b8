package model

// Pair is a single fingerprint entry: a time offset and the 32-bit hash
// code extracted at that offset. Matching ignores the offset; it is carried
// on the wire only because the fingerprint engine emits it.
type Pair struct {
	Offset uint32
	Code   uint32
}

// MatchCandidate is the best-scoring track for a code query. Score is the
// number of query-code/index-entry pairings that agree on the code.
type MatchCandidate struct {
	TrackID string
	Score   int
}

// TrackMetadata holds the resolved display fields for a track. A nil field
// means no row resolved for that association; it is never an error.
type TrackMetadata struct {
	Title  *string
	Artist *string
	Album  *string
}

// Identification is the outcome of one identify call at the service
// boundary. When Found is false the remaining fields are zero.
type Identification struct {
	Found   bool
	TrackID string
	Score   int
	Meta    TrackMetadata
}
