// Package bpfport implements the driver channel on Linux, where the kernel
// side is an eBPF program rather than a minifilter.
//
// The producer pins four maps in a directory on bpffs:
//
//	fsw_events       ring buffer; each sample is one log record in the
//	                 logrecord wire format
//	fsw_version      array[1] of {major, minor uint16}
//	fsw_settings     array[2] of int64: process filter, thread filter
//	fsw_path_filter  array[1] of [1024]byte, NUL-terminated UTF-16 pattern
//
// FetchLog reads samples from the ring buffer and concatenates them the way
// the minifilter fills its reply buffer. Configuration commands become map
// updates.
package bpfport
