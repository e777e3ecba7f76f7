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
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// rxQueueDepth bounds how many pending datagrams UDPNetworkIO buffers
// between the reading goroutine and the cooperative-loop consumer,
// mirroring the fixed-depth queue a real UDP RX ISR fills on the
// target.
const rxQueueDepth = 64

// UDPNetworkIO implements hw.NetworkIO over a real net.UDPConn. A
// background goroutine does the blocking read syscall and only
// enqueues the raw bytes and source address, mirroring the
// ISR-enqueues/task-parses split of the target. Parsing happens
// later, in ntpserver.Server.HandleDatagram, never here.
type UDPNetworkIO struct {
	conn  *net.UDPConn
	queue chan hw.Datagram
	done  chan struct{}
}

// ListenUDP binds port on every interface and starts the background
// reader. Port 123 is the standard NTP port.
func ListenUDP(port int) (*UDPNetworkIO, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("platform: listening on UDP port %d: %w", port, err)
	}
	n := &UDPNetworkIO{
		conn:  conn,
		queue: make(chan hw.Datagram, rxQueueDepth),
		done:  make(chan struct{}),
	}
	go n.readLoop()
	return n, nil
}

func (n *UDPNetworkIO) readLoop() {
	buf := make([]byte, 512)
	for {
		size, addr, err := n.conn.ReadFromUDP(buf)
		select {
		case <-n.done:
			return
		default:
		}
		if err != nil {
			log.Warnf("[platform] udp read error: %v", err)
			continue
		}
		payload := make([]byte, size)
		copy(payload, buf[:size])

		d := hw.Datagram{Payload: payload}
		if v4 := addr.IP.To4(); v4 != nil {
			copy(d.SrcAddr[:], v4)
		}
		d.SrcPort = uint16(addr.Port) // #nosec G115 -- UDP port is always <= 65535

		select {
		case n.queue <- d:
		default:
			log.Warn("[platform] udp rx queue full, dropping datagram")
		}
	}
}

// Recv implements hw.NetworkIO: a non-blocking pull from the queue the
// background reader fills.
func (n *UDPNetworkIO) Recv() (hw.Datagram, bool) {
	select {
	case d := <-n.queue:
		return d, true
	default:
		return hw.Datagram{}, false
	}
}

// Send implements hw.NetworkIO.
func (n *UDPNetworkIO) Send(dstAddr [4]byte, dstPort uint16, payload []byte) hw.SendResult {
	addr := &net.UDPAddr{IP: net.IPv4(dstAddr[0], dstAddr[1], dstAddr[2], dstAddr[3]), Port: int(dstPort)}
	if _, err := n.conn.WriteToUDP(payload, addr); err != nil {
		log.Errorf("[platform] udp send to %s failed: %v", addr, err)
		return hw.SendError
	}
	return hw.SendSent
}

// Close stops the background reader and closes the socket.
func (n *UDPNetworkIO) Close() error {
	close(n.done)
	return n.conn.Close()
}
