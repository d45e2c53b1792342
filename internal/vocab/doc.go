// Package vocab recodes partner-supplied vocabulary into canonical RD3 codes.
//
// Every mapping is a total function backed by an explicit table: a value is
// either recoded, explicitly dropped, or reported as an *UnknownError naming
// the table, column and offending value. Nothing here performs I/O beyond
// decoding alias overrides from a reader.
package vocab
