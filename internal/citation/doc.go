// Package citation validates bibliographic completeness and formats
// human-readable citation strings from raw metadata fields.
package citation
