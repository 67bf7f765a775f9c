// Package notebook holds the content domain: notebooks, notes, shares,
// labels, and note history.
//
// The Service is the only write path. It resolves permissions through the
// access package before touching storage, appends history on content edits,
// and publishes change events for realtime subscribers. Stores stay dumb:
// they persist rows and report conflicts, nothing else.
package notebook
