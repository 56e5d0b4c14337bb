// Package simplecms provides the core of a multi-tenant content management
// system: runtime-defined content types, a schema-checked entry store, and the
// membership guard that keeps every site with at least one admin.
//
// It exposes a single Service interface. Repositories (memory, Postgres) live
// under repo/, site lockers (in-process, Redis) under lock/, and the HTTP
// handlers under api/.
//
// Entry values
//
// Entry values are a tagged union (Value) whose tag is the FieldKind of the
// field they belong to. Loosely typed input is coerced on write with Coerce;
// persisted values use their natural JSON shape and are rebuilt with
// DecodeValues against the current content type.
//
// Identifiers and permalinks
//
// A lookup value that parses as a UUID is an entry identifier; anything else
// is a permalink. Generated permalinks never parse as UUIDs, so the two never
// collide.
package simplecms
