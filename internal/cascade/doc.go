// Package cascade drives a single item from its current lifecycle state to a
// terminal one by trying acquisition strategies in priority order. Citation
// linking runs first, content fetch second, model extraction last. Recoverable
// failures fall through to the next strategy; permanent failures and final
// strategy failures end in exhausted. Success routing depends on the stage:
// linked citations are validated and stored, discovered identifiers pause at a
// human checkpoint, and extracted metadata waits for review when its quality
// score clears the threshold.
//
// All status writes go through the library package's guarded transition, so
// two workers racing on one item resolve to exactly one winner. The loser
// observes a state conflict and reports its run as skipped.
package cascade
