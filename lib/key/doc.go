// Package key implements the canonical key codec of rKV.
//
// Callers address values with an ordered sequence of string segments
// (e.g. ["DATA", "Key1"]). Encode turns such a sequence into a single
// canonical Key by percent-encoding every segment and terminating each one
// with a '/' separator:
//
//	key.Encode("DATA", "Key1") // "DATA/Key1/"
//	key.Encode("a/b")          // "a%2Fb/"
//	key.Encode("DATA")         // "DATA/"
//
// The trailing separator is load-bearing: it makes string prefixes behave like
// a hierarchical namespace. The key of ["A"] ("A/") is a prefix of the key of
// ["A", "B"] ("A/B/") but never of the key of ["AB"] ("AB/"), so prefix
// queries in the store never match sibling keys by accident.
//
// The encoding is deterministic and injective: two different segment
// sequences never share a key. Decode reverses Encode and rejects strings that
// Encode could not have produced.
package key
