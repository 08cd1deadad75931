// Package resourcestore stores, retrieves, lists and deletes named byte blobs
// ("resources") on a flat, key-addressed object store while presenting an
// emulated folder hierarchy to callers.
//
// Object stores such as S3 or GCS have no directories. Keys carry prefixes
// with forward slashes instead, and a Prefixer derives one such prefix per
// owner (a venue, an organization, a catalog). Callers address resources
// either by full key or by (owner ID, relative name); the Store resolves the
// latter through a Codec.
//
// Backends implement the Gateway interface and live under storage/: s3, gcs,
// fs (local disk) and memory. Every Gateway performs exactly one backend call
// per operation and translates backend failures into the error taxonomy in
// errors.go.
//
// Conditional writes
//
// Store.Put checks for an existing key before writing and fails with
// ErrAlreadyExists when one is found. The check and the write are separate
// backend calls, so two concurrent creates of the same key may both succeed
// and the last writer wins. Callers that need strict exclusivity must
// coordinate externally.
package resourcestore
