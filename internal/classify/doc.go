// Package classify maps raw stage failures onto a fixed error taxonomy and
// the retry/backoff policy derived from it. Classification is pure string
// matching over the error message, so the same input always yields the same
// category.
package classify
