// Package contentfetch wraps the content fetch-and-extract service used when
// an item has no resolvable identifier. A successful fetch yields a cached
// content key and any alternate identifiers discovered in the page.
package contentfetch
