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

package platform

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum1/gnssntpd/internal/configstore"
	"github.com/stratum1/gnssntpd/internal/hw"
)

func TestFileFlash_WriteReadErase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	f, err := OpenFileFlash(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Write(0, []byte("hello")))
	buf := make([]byte, 5)
	require.NoError(t, f.Read(0, buf))
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, f.Erase(0, 5))
	require.NoError(t, f.Read(0, buf))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, buf)

	assert.False(t, f.BrownoutFlagged())
	f.SetBrownout(true)
	assert.True(t, f.BrownoutFlagged())
}

func TestFileFlash_SizedToSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	f, err := OpenFileFlash(path)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4)
	require.NoError(t, f.Read(configstore.DefaultSectorBytes-4, buf))
}

func TestSystemMonotonicClock(t *testing.T) {
	var c SystemMonotonicClock
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	assert.Greater(t, c.Sub(b, a), int64(0))
	assert.Equal(t, uint(64), c.Width())
}

func TestUDPNetworkIO_RoundTrip(t *testing.T) {
	n, err := ListenUDP(0)
	require.NoError(t, err)
	defer n.Close()

	udpAddr, ok := n.conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	_, ok2 := n.Recv()
	assert.False(t, ok2, "queue should start empty")

	loopback := [4]byte{127, 0, 0, 1}
	result := n.Send(loopback, uint16(udpAddr.Port), []byte("ping"))
	assert.Equal(t, hw.SendSent, result)

	var got hw.Datagram
	for i := 0; i < 100; i++ {
		if d, ok := n.Recv(); ok {
			got = d
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, "ping", string(got.Payload))
}
