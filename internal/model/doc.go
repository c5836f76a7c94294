// Package model defines the records exchanged with the remote requisition
// service and kept in the local cache.
//
// # Wire Compatibility
//
// Records are decoded from a spreadsheet-backed API, so the decoders are
// lenient where spreadsheets are sloppy:
//   - Text fields that arrive as JSON numbers or booleans are read as strings.
//   - Quantities accept JSON numbers, numeric strings, empty strings and null.
//   - Unknown requisition fields are kept in Requisition.Extra and written back
//     verbatim, so a cache or remote round trip never drops data.
//   - Roles accept both the canonical names (manager, operations, fitter) and
//     the names stored by the sheet (gestor, operacional, montador).
//
// # Ordering
//
// A Snapshot is always kept newest-first by CreatedAt. Timestamps that do not
// parse sort as the Unix epoch, i.e. last.
package model
