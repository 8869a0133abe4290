// Package logrecord implements the binary protocol spoken with the filter
// driver: the log record format returned by FetchLog, the command messages
// and the version reply.
//
// A log buffer is a strict concatenation of records:
//
//	┌──────────────── header (48 bytes) ────────────────┐┌──── tail ────┐
//	│ Length │ Seq │ RecordType │ Reserved │ OrigTime │ ... │ PID ││ UTF-16 names │
//	└────────────────────────────────────────────────────┘└──────────────┘
//
// Length covers header and tail. The tail holds NUL-separated UTF-16 names:
// one path for most events, old path then new path for moves. All integers
// use the platform's native byte order.
package logrecord
