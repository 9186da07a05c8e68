// Package documents holds the document model, persistence, and the view
// access policy.
//
// View access is an ordered OR over cheap checks first: public flag,
// ownership, superuser bypass, access-rule match, then the implicit
// world-readability of PUBLISHED documents. Download, print, and copy run
// a second, independent grant check layered on top of view access, so a
// user can be able to read a document without being able to export it.
//
// Access rules are a tagged list; each entry states which identifier
// space its value belongs to. Rows written before the tagging migration
// decode as kind "any" and match every space, preserving their historical
// behavior.
package documents
