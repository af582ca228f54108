// Package citelink wraps the citation-linking service that resolves an
// identifier or raw URL into a citation key plus raw bibliographic fields.
package citelink
