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

package ntppacket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesRoundTrip(t *testing.T) {
	p := &Packet{
		Stratum:        1,
		Poll:           6,
		Precision:      -20,
		RootDelay:      0,
		RootDispersion: 10,
		ReferenceID:    0x47505300,
		TxTimeSec:      3900000000,
		TxTimeFrac:     123456,
	}
	p.SetLIVNMode(LeapNone, 4, ModeServer)

	data, err := p.Bytes()
	require.NoError(t, err)
	require.Len(t, data, SizeBytes)

	var got Packet
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, *p, got)
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	var p Packet
	err := p.Unmarshal(make([]byte, 47))
	require.Error(t, err)
	err = p.Unmarshal(make([]byte, 49))
	require.Error(t, err)
}

func TestValidRequest(t *testing.T) {
	cases := []struct {
		name string
		vn   uint8
		mode uint8
		want bool
	}{
		{"vn3 client", 3, ModeClient, true},
		{"vn4 client", 4, ModeClient, true},
		{"vn2 client rejected", 2, ModeClient, false},
		{"vn5 client rejected", 5, ModeClient, false},
		{"vn4 server mode rejected", 4, ModeServer, false},
		{"vn4 symmetric active rejected", 4, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var p Packet
			p.SetLIVNMode(LeapNone, c.vn, c.mode)
			require.Equal(t, c.want, p.ValidRequest())
		})
	}
}

func TestOriginTimestampVerbatimCopy(t *testing.T) {
	// origin_timestamp in the response must be a byte-for-byte copy
	// of the client's transmit_timestamp; clients match replies on it.
	clientTx := [8]byte{0xE4, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00}
	var req Packet
	req.SetLIVNMode(LeapNone, 4, ModeClient)
	req.TxTimeSec = uint32(clientTx[0])<<24 | uint32(clientTx[1])<<16 | uint32(clientTx[2])<<8 | uint32(clientTx[3])
	req.TxTimeFrac = uint32(clientTx[4])<<24 | uint32(clientTx[5])<<16 | uint32(clientTx[6])<<8 | uint32(clientTx[7])

	var resp Packet
	resp.OrigTimeSec = req.TxTimeSec
	resp.OrigTimeFrac = req.TxTimeFrac

	data, err := resp.Bytes()
	require.NoError(t, err)
	// OrigTimeSec/Frac sit at bytes 24..31, after the 12-byte header,
	// the 4-byte RefID and the 8-byte RefTime.
	require.Equal(t, clientTx[:], data[24:32])
}
