// Package timesync turns the driver's raw record timestamps into wall-clock
// time.
//
// The Windows driver stamps records with FILETIME values (100ns ticks since
// 1601), handled by Filetime. The Linux producer stamps them with
// nanoseconds since boot; Converter anchors those at the boot time reported
// by the host.
package timesync
