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

// Package hw mocks, written by hand in the shape mockgen produces,
// since there is no flash hardware here to run mockgen against.
package hw

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockFlashDevice is a mock of FlashDevice.
type MockFlashDevice struct {
	ctrl     *gomock.Controller
	recorder *MockFlashDeviceMockRecorder
}

// MockFlashDeviceMockRecorder is the mock recorder for MockFlashDevice.
type MockFlashDeviceMockRecorder struct {
	mock *MockFlashDevice
}

// NewMockFlashDevice creates a new mock instance.
func NewMockFlashDevice(ctrl *gomock.Controller) *MockFlashDevice {
	mock := &MockFlashDevice{ctrl: ctrl}
	mock.recorder = &MockFlashDeviceMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockFlashDevice) EXPECT() *MockFlashDeviceMockRecorder {
	return m.recorder
}

// Erase mocks base method.
func (m *MockFlashDevice) Erase(offset, length uint32) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Erase", offset, length)
	ret0, _ := ret[0].(error)
	return ret0
}

// Erase indicates an expected call of Erase.
func (mr *MockFlashDeviceMockRecorder) Erase(offset, length interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Erase", reflect.TypeOf((*MockFlashDevice)(nil).Erase), offset, length)
}

// Write mocks base method.
func (m *MockFlashDevice) Write(offset uint32, data []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Write", offset, data)
	ret0, _ := ret[0].(error)
	return ret0
}

// Write indicates an expected call of Write.
func (mr *MockFlashDeviceMockRecorder) Write(offset, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Write", reflect.TypeOf((*MockFlashDevice)(nil).Write), offset, data)
}

// Read mocks base method.
func (m *MockFlashDevice) Read(offset uint32, buf []byte) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Read", offset, buf)
	ret0, _ := ret[0].(error)
	return ret0
}

// Read indicates an expected call of Read.
func (mr *MockFlashDeviceMockRecorder) Read(offset, buf interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Read", reflect.TypeOf((*MockFlashDevice)(nil).Read), offset, buf)
}

// BrownoutFlagged mocks base method.
func (m *MockFlashDevice) BrownoutFlagged() bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "BrownoutFlagged")
	ret0, _ := ret[0].(bool)
	return ret0
}

// BrownoutFlagged indicates an expected call of BrownoutFlagged.
func (mr *MockFlashDeviceMockRecorder) BrownoutFlagged() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "BrownoutFlagged", reflect.TypeOf((*MockFlashDevice)(nil).BrownoutFlagged))
}

// MockMonotonicClock is a mock of MonotonicClock.
type MockMonotonicClock struct {
	ctrl     *gomock.Controller
	recorder *MockMonotonicClockMockRecorder
}

// MockMonotonicClockMockRecorder is the mock recorder for MockMonotonicClock.
type MockMonotonicClockMockRecorder struct {
	mock *MockMonotonicClock
}

// NewMockMonotonicClock creates a new mock instance.
func NewMockMonotonicClock(ctrl *gomock.Controller) *MockMonotonicClock {
	mock := &MockMonotonicClock{ctrl: ctrl}
	mock.recorder = &MockMonotonicClockMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockMonotonicClock) EXPECT() *MockMonotonicClockMockRecorder {
	return m.recorder
}

// Now mocks base method.
func (m *MockMonotonicClock) Now() Tick {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Now")
	ret0, _ := ret[0].(Tick)
	return ret0
}

// Now indicates an expected call of Now.
func (mr *MockMonotonicClockMockRecorder) Now() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Now", reflect.TypeOf((*MockMonotonicClock)(nil).Now))
}

// TickRate mocks base method.
func (m *MockMonotonicClock) TickRate() uint64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "TickRate")
	ret0, _ := ret[0].(uint64)
	return ret0
}

// TickRate indicates an expected call of TickRate.
func (mr *MockMonotonicClockMockRecorder) TickRate() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "TickRate", reflect.TypeOf((*MockMonotonicClock)(nil).TickRate))
}

// Sub mocks base method.
func (m *MockMonotonicClock) Sub(a, b Tick) int64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Sub", a, b)
	ret0, _ := ret[0].(int64)
	return ret0
}

// Sub indicates an expected call of Sub.
func (mr *MockMonotonicClockMockRecorder) Sub(a, b interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Sub", reflect.TypeOf((*MockMonotonicClock)(nil).Sub), a, b)
}

// Width mocks base method.
func (m *MockMonotonicClock) Width() uint {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Width")
	ret0, _ := ret[0].(uint)
	return ret0
}

// Width indicates an expected call of Width.
func (mr *MockMonotonicClockMockRecorder) Width() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Width", reflect.TypeOf((*MockMonotonicClock)(nil).Width))
}
