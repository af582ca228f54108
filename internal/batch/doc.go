// Package batch runs the cascade over many items at once. A session owns an
// ordered id list and a worker pool; workers claim ids through a single
// guarded index so progress is monotonic, and pause, resume, and cancel take
// effect at item boundaries only. Callers poll Status for progress or Wait
// for the final tally.
package batch
