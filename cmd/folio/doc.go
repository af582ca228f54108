// Command folio manages a library of bookmarked resources and drives the
// staged acquisition of bibliographic metadata for them.
package main
