// Package wal provides the append-only write-ahead log backing the
// consensus engine. Votes and step transitions are framed as length-prefixed
// CBOR records with a CRC32 checksum and appended to fixed-size segment
// files, so a crashed node can rebuild its vote store on restart and a torn
// tail write is detected instead of replayed.
package wal
