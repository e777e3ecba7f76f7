/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package ntptime implements the 64-bit NTP timestamp format and the
handful of conversions the rest of the module needs: NTP epoch
(1900-01-01) to/from Unix epoch (1970-01-01), and a (seconds, fraction)
pair to/from a Unix nanosecond count. It is deliberately independent of
the 48-byte wire packet layout, which lives in ntppacket.
*/
package ntptime

// UnixToNTPEpochSeconds is the difference, in seconds, between the
// Unix epoch and the NTP epoch.
const UnixToNTPEpochSeconds = 2208988800

// Timestamp is a 64-bit NTP timestamp: whole seconds since the
// NTP epoch, plus a binary fraction of a second (fraction / 2^32 s).
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// FromUnix converts a Unix time (seconds since 1970-01-01, plus
// nanoseconds within that second) to an NTP Timestamp. nanos must be
// in [0, 1e9); the fraction is rounded toward zero and clamped to
// 2^32-1 so it can never carry into Seconds.
func FromUnix(unixSeconds int64, nanos int64) Timestamp {
	seconds := uint32(unixSeconds + UnixToNTPEpochSeconds) // #nosec G115 -- 32-bit wire width, era wrap expected
	fraction := (nanos << 32) / 1_000_000_000
	if fraction >= 1<<32 {
		fraction = 1<<32 - 1
	}
	return Timestamp{Seconds: seconds, Fraction: uint32(fraction)}
}

// ToUnix converts an NTP Timestamp back to Unix seconds and
// nanoseconds within the second. The nanosecond count is rounded up
// (and capped at 999,999,999), so a nanosecond value that went through
// FromUnix comes back unchanged.
func ToUnix(t Timestamp) (unixSeconds int64, nanos int64) {
	unixSeconds = int64(t.Seconds) - UnixToNTPEpochSeconds
	nanos = (int64(t.Fraction)*1_000_000_000 + (1<<32 - 1)) >> 32
	if nanos > 999_999_999 {
		nanos = 999_999_999
	}
	return unixSeconds, nanos
}
