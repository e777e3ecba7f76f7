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

package configstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// Magic identifies a valid header; it spells "GPSA" in ASCII.
const Magic uint32 = 0x47505341

const headerSizeBytes = 32

// DefaultSectorBytes is the size of the reserved single-sector flash
// region both slots live in.
const DefaultSectorBytes = 4096

// MaxBodyBytes bounds a single slot's serialized body. It is set so
// the two header+body slots fit side by side within
// DefaultSectorBytes (2 * (headerSizeBytes + MaxBodyBytes) ==
// DefaultSectorBytes).
const MaxBodyBytes = DefaultSectorBytes/2 - headerSizeBytes

// crcTable is the IEEE 802.3 polynomial (0xEDB88320, reflected), with
// crc32.Checksum supplying the 0xFFFFFFFF init/xor convention.
var crcTable = crc32.MakeTable(0xEDB88320)

type slotHeader struct {
	Magic     uint32
	Size      uint32
	Version   uint32
	Crc32     uint32
	Timestamp uint64
	Reserved  [8]byte
}

func (h slotHeader) marshal() []byte {
	buf := make([]byte, headerSizeBytes)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Size)
	binary.BigEndian.PutUint32(buf[8:12], h.Version)
	binary.BigEndian.PutUint32(buf[12:16], h.Crc32)
	binary.BigEndian.PutUint64(buf[16:24], h.Timestamp)
	copy(buf[24:32], h.Reserved[:])
	return buf
}

func unmarshalHeader(buf []byte) (slotHeader, error) {
	if len(buf) != headerSizeBytes {
		return slotHeader{}, fmt.Errorf("configstore: header is %d bytes, want %d", len(buf), headerSizeBytes)
	}
	var h slotHeader
	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Size = binary.BigEndian.Uint32(buf[4:8])
	h.Version = binary.BigEndian.Uint32(buf[8:12])
	h.Crc32 = binary.BigEndian.Uint32(buf[12:16])
	h.Timestamp = binary.BigEndian.Uint64(buf[16:24])
	copy(h.Reserved[:], buf[24:32])
	return h, nil
}

// slotLayout describes the flash offsets of one of the two ping-pong
// slots within the reserved sector.
type slotLayout struct {
	headerOffset uint32
	bodyOffset   uint32
}

func layouts() (a, b slotLayout) {
	a = slotLayout{headerOffset: 0, bodyOffset: headerSizeBytes}
	b = slotLayout{headerOffset: headerSizeBytes + MaxBodyBytes, bodyOffset: 2*headerSizeBytes + MaxBodyBytes}
	return a, b
}

// ErrBrownout is returned by Commit/FactoryReset when the platform
// reports unstable power: a flash write started on a collapsing rail
// is how both slots end up torn at once.
var ErrBrownout = errors.New("configstore: refusing flash write during brownout")

// ErrBusy is returned by Commit when another commit is already in
// flight; commits are serialized, never queued.
var ErrBusy = errors.New("configstore: commit already in progress")

// Store owns the single in-memory ConfigRecord and its flash mirror,
// exclusively. Everything else sees the record only through Snapshot
// copies.
type Store struct {
	flash hw.FlashDevice

	commitMu sync.Mutex // serializes Commit/FactoryReset

	mu                 sync.RWMutex
	record             ConfigRecord
	commitCounter      uint64
	activeSlot         int // 0 = A, 1 = B
	lastCommitFailed   bool
	bootedFromDefaults bool
}

// Health is the subset of Store state the Health Supervisor's Config
// service sample derives from: a failed last commit degrades to
// Warning, boot-time corruption fallback to Critical.
type Health struct {
	LastCommitFailed bool
	// CorruptionFallback is true if, at boot, neither flash slot
	// validated and factory defaults had to be loaded.
	CorruptionFallback bool
}

// HealthStatus reports the Config store's current health, for polling
// by the Health Supervisor.
func (s *Store) HealthStatus() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Health{LastCommitFailed: s.lastCommitFailed, CorruptionFallback: s.bootedFromDefaults}
}

// Open loads the winning slot at boot, or factory defaults if neither
// slot validates. With two valid slots the greater commit timestamp
// wins; factory defaults are persisted to slot A immediately so the
// next boot finds a valid record.
func Open(flash hw.FlashDevice) (*Store, error) {
	s := &Store{flash: flash}

	a, b := layouts()
	hdrA, bodyA, okA := s.readSlot(a)
	hdrB, bodyB, okB := s.readSlot(b)

	switch {
	case okA && okB:
		if hdrB.Timestamp > hdrA.Timestamp {
			s.activeSlot = 1
			s.commitCounter = hdrB.Timestamp
			return s, s.loadBody(bodyB)
		}
		s.activeSlot = 0
		s.commitCounter = hdrA.Timestamp
		return s, s.loadBody(bodyA)
	case okA:
		s.activeSlot = 0
		s.commitCounter = hdrA.Timestamp
		return s, s.loadBody(bodyA)
	case okB:
		s.activeSlot = 1
		s.commitCounter = hdrB.Timestamp
		return s, s.loadBody(bodyB)
	default:
		log.Warn("[configstore] no valid slot found, loading factory defaults")
		s.bootedFromDefaults = true
		defaults, err := FactoryDefaults()
		if err != nil {
			return nil, err
		}
		s.activeSlot = 1 // so the write below targets slot A
		if err := s.writeSlotLocked(defaults, 0); err != nil {
			return nil, fmt.Errorf("configstore: persisting factory defaults: %w", err)
		}
		return s, nil
	}
}

func (s *Store) loadBody(body []byte) error {
	var rec ConfigRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("configstore: decoding body: %w", err)
	}
	s.record = rec
	return nil
}

// readWithRetry masks a single transient flash read error with one
// immediate re-read before the slot is given up on.
func (s *Store) readWithRetry(offset uint32, buf []byte) error {
	err := s.flash.Read(offset, buf)
	if err == nil {
		return nil
	}
	log.Warnf("[configstore] flash read at offset %d failed, retrying once: %v", offset, err)
	return s.flash.Read(offset, buf)
}

func (s *Store) readSlot(layout slotLayout) (slotHeader, []byte, bool) {
	hdrBuf := make([]byte, headerSizeBytes)
	if err := s.readWithRetry(layout.headerOffset, hdrBuf); err != nil {
		log.Warnf("[configstore] header read failed at offset %d after retry: %v", layout.headerOffset, err)
		return slotHeader{}, nil, false
	}
	hdr, err := unmarshalHeader(hdrBuf)
	if err != nil {
		return slotHeader{}, nil, false
	}
	if hdr.Magic != Magic || hdr.Size > MaxBodyBytes {
		return slotHeader{}, nil, false
	}
	body := make([]byte, hdr.Size)
	if err := s.readWithRetry(layout.bodyOffset, body); err != nil {
		log.Warnf("[configstore] body read failed at offset %d after retry: %v", layout.bodyOffset, err)
		return slotHeader{}, nil, false
	}
	if crc32.Checksum(body, crcTable) != hdr.Crc32 {
		return slotHeader{}, nil, false
	}
	return hdr, body, true
}

// Snapshot returns a copy of the in-memory record.
func (s *Store) Snapshot() ConfigRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// Commit validates and persists new, replacing the in-memory record
// only after the flash write sequence completes. If another commit is
// already in flight it returns ErrBusy immediately rather than
// blocking.
func (s *Store) Commit(newRecord ConfigRecord) error {
	if err := newRecord.Validate(); err != nil {
		return err
	}
	if !s.commitMu.TryLock() {
		return ErrBusy
	}
	defer s.commitMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.commitLocked(newRecord)
	s.lastCommitFailed = err != nil
	return err
}

// commitLocked performs a normal commit: it advances the commit
// counter and writes at that new timestamp. Caller must hold s.mu.
func (s *Store) commitLocked(newRecord ConfigRecord) error {
	s.commitCounter++
	return s.writeSlotLocked(newRecord, s.commitCounter)
}

// writeSlotLocked runs the atomic commit sequence: serialize to
// staging, fill the header, erase the inactive slot, then write body
// before header — a torn write therefore never advertises a body that
// isn't fully on flash, and the previous active slot stays
// authoritative until the new header lands. Only then is the in-memory
// record swapped. Caller must hold s.mu.
func (s *Store) writeSlotLocked(newRecord ConfigRecord, timestamp uint64) error {
	if s.flash.BrownoutFlagged() {
		return ErrBrownout
	}

	body, err := json.Marshal(newRecord)
	if err != nil {
		return fmt.Errorf("configstore: encoding body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("configstore: serialized body is %d bytes, exceeds max %d", len(body), MaxBodyBytes)
	}

	inactive := 1 - s.activeSlot
	a, b := layouts()
	target := a
	if inactive == 1 {
		target = b
	}

	hdr := slotHeader{
		Magic:     Magic,
		Size:      uint32(len(body)), // #nosec G115 -- bounded by MaxBodyBytes check above
		Version:   uint32(newRecord.Version),
		Crc32:     crc32.Checksum(body, crcTable),
		Timestamp: timestamp,
	}

	if err := s.flash.Erase(target.headerOffset, headerSizeBytes+MaxBodyBytes); err != nil {
		return fmt.Errorf("configstore: erasing inactive slot: %w", err)
	}
	if err := s.flash.Write(target.bodyOffset, body); err != nil {
		return fmt.Errorf("configstore: writing body: %w", err)
	}
	if err := s.flash.Write(target.headerOffset, hdr.marshal()); err != nil {
		return fmt.Errorf("configstore: writing header: %w", err)
	}

	s.activeSlot = inactive
	s.commitCounter = timestamp
	s.record = newRecord
	return nil
}

// FactoryReset erases both slots and persists defaults to slot A. The
// commit counter restarts at 0.
func (s *Store) FactoryReset() error {
	if !s.commitMu.TryLock() {
		return ErrBusy
	}
	defer s.commitMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flash.BrownoutFlagged() {
		return ErrBrownout
	}

	a, b := layouts()
	if err := s.flash.Erase(a.headerOffset, headerSizeBytes+MaxBodyBytes); err != nil {
		return fmt.Errorf("configstore: erasing slot A: %w", err)
	}
	if err := s.flash.Erase(b.headerOffset, headerSizeBytes+MaxBodyBytes); err != nil {
		return fmt.Errorf("configstore: erasing slot B: %w", err)
	}

	defaults, err := FactoryDefaults()
	if err != nil {
		return err
	}
	s.activeSlot = 1 // writeSlotLocked below targets A
	err = s.writeSlotLocked(defaults, 0)
	s.lastCommitFailed = err != nil
	if err == nil {
		s.bootedFromDefaults = false
	}
	return err
}
