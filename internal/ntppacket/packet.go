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
Package ntppacket implements the 48-byte RFC 5905 NTP packet: quick,
transparent translation between wire bytes and a struct, in the most
efficient way available (a single binary.Write/Read over a
fixed-layout struct).

http://seriot.ch/ntp.php
https://tools.ietf.org/html/rfc5905

   0                   1                   2                   3
   0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |LI | VN  |Mode |    Stratum     |     Poll      |  Precision   |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                         Root Delay                            |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                         Root Dispersion                       |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                          Reference ID                         |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                     Reference Timestamp (64)                  |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                      Origin Timestamp (64)                    |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                      Receive Timestamp (64)                   |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
  |                      Transmit Timestamp (64)                  |
  +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/
package ntppacket

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SizeBytes is the fixed on-wire size of an NTP packet.
const SizeBytes = 48

// Leap indicator values.
const (
	LeapNone         = 0
	LeapInsertSecond = 1
	LeapDeleteSecond = 2
	LeapAlarm        = 3
)

// Mode values relevant to this server: it only ever receives Client
// and only ever sends Server.
const (
	ModeClient = 3
	ModeServer = 4
)

const (
	vnMin = 3
	vnMax = 4
)

// Packet is an NTPv3/v4 packet, laid out to match the wire format
// exactly so it can be read/written with a single encoding/binary
// call.
type Packet struct {
	Settings       uint8 // LI(2) | VN(3) | Mode(3)
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      int32  // signed 16.16 fixed-point seconds
	RootDispersion uint32 // unsigned 16.16 fixed-point seconds
	ReferenceID    uint32
	RefTimeSec     uint32
	RefTimeFrac    uint32
	OrigTimeSec    uint32
	OrigTimeFrac   uint32
	RxTimeSec      uint32
	RxTimeFrac     uint32
	TxTimeSec      uint32
	TxTimeFrac     uint32
}

// LI extracts the leap indicator field.
func (p *Packet) LI() uint8 { return p.Settings >> 6 }

// VN extracts the version number field.
func (p *Packet) VN() uint8 { return (p.Settings >> 3) & 0x7 }

// Mode extracts the mode field.
func (p *Packet) Mode() uint8 { return p.Settings & 0x7 }

// SetLIVNMode packs the three header fields into Settings.
func (p *Packet) SetLIVNMode(li, vn, mode uint8) {
	p.Settings = (li << 6) | (vn << 3) | mode
}

// ValidRequest reports whether this packet is an acceptable client
// request: VN in {3,4} and Mode == client(3). LI is not checked on
// input — a client's LI field is conventionally 0 and servers ignore
// it.
func (p *Packet) ValidRequest() bool {
	vn := p.VN()
	return vn >= vnMin && vn <= vnMax && p.Mode() == ModeClient
}

// Bytes serializes the packet to 48 big-endian bytes.
func (p *Packet) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes exactly SizeBytes big-endian bytes into the
// packet. It returns an error on any other length — NTP datagrams
// from clients this server answers are always exactly 48 bytes.
func (p *Packet) Unmarshal(data []byte) error {
	if len(data) != SizeBytes {
		return fmt.Errorf("ntppacket: invalid size %d, want %d", len(data), SizeBytes)
	}
	return binary.Read(bytes.NewReader(data), binary.BigEndian, p)
}
