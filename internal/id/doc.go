// Package id generates URL-safe identifiers for checks, evidence items,
// and audit records.
//
// Identifiers are UUIDv4 bytes encoded as unpadded base32 (RFC 4648): 26
// lowercase characters, safe for use in URLs and file paths.
package id
