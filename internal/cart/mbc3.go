package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (08-0C)
// - 6000-7FFF: latch clock data on a 0->1 write
// - A000-BFFF: external RAM, or the latched RTC register when one is selected
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3 when rtcSelected is false

	rtcSelected bool
	rtcReg      byte // 0x08..0x0C
	lastLatch   byte

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	latchedSec, latchedMin, latchedHour byte
	latchedDay                          uint16
	latchedHalt, latchedCarry           bool
}

// nowUnix is the wall-clock source for RTC advancement; overridden in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelected {
			return m.readRTC()
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if len(m.ram) > 0 && off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTC() byte {
	switch m.rtcReg {
	case 0x08:
		return m.latchedSec
	case 0x09:
		return m.latchedMin
	case 0x0A:
		return m.latchedHour
	case 0x0B:
		return byte(m.latchedDay)
	case 0x0C:
		v := byte(m.latchedDay>>8) & 0x01
		if m.latchedHalt {
			v |= 0x40
		}
		if m.latchedCarry {
			v |= 0x80
		}
		return v
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 {
			m.ramBank = value & 0x03
			m.rtcSelected = false
		} else if value >= 0x08 && value <= 0x0C {
			m.rtcReg = value
			m.rtcSelected = true
		} else {
			m.rtcSelected = false
			m.ramBank = 0
		}
	case addr < 0x8000:
		if m.lastLatch == 0 && value == 1 {
			m.updateRTC()
			m.latchedSec, m.latchedMin, m.latchedHour, m.latchedDay = m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay
			m.latchedHalt, m.latchedCarry = m.rtcHalt, m.rtcCarry
		}
		m.lastLatch = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelected {
			m.writeRTC(value)
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if len(m.ram) > 0 && off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTC(value byte) {
	m.updateRTC()
	switch m.rtcReg {
	case 0x08:
		m.rtcSec = value % 60
	case 0x09:
		m.rtcMin = value % 60
	case 0x0A:
		m.rtcHour = value % 24
	case 0x0B:
		m.rtcDay = (m.rtcDay &^ 0xFF) | uint16(value)
	case 0x0C:
		if value&0x01 != 0 {
			m.rtcDay |= 0x100
		} else {
			m.rtcDay &^= 0x100
		}
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
}

// updateRTC folds elapsed wall-clock seconds into the live RTC registers.
// Halting the clock (bit 6 of register 0x0C) freezes it in place.
func (m *MBC3) updateRTC() {
	if m.rtcHalt {
		return
	}
	now := nowUnix()
	elapsed := now - m.lastRTCWallSec
	if elapsed <= 0 {
		return
	}
	m.lastRTCWallSec = now

	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + elapsed
	m.rtcSec = byte(total % 60)
	total /= 60
	m.rtcMin = byte(total % 60)
	total /= 60
	m.rtcHour = byte(total % 24)
	total /= 24
	if total > 0x1FF {
		m.rtcCarry = true
		total %= 0x200
	}
	m.rtcDay = uint16(total)
}

// SaveRAM returns external RAM plus RTC state, for battery persistence.
func (m *MBC3) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3RTCBlob{
		RAM: m.ram,
		Sec: m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour, Day: m.rtcDay,
		Halt: m.rtcHalt, Carry: m.rtcCarry, LastWall: m.lastRTCWallSec,
		LatchedSec: m.latchedSec, LatchedMin: m.latchedMin, LatchedHour: m.latchedHour,
		LatchedDay: m.latchedDay, LatchedHalt: m.latchedHalt, LatchedCarry: m.latchedCarry,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	var blob mbc3RTCBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&blob); err != nil {
		return
	}
	if len(m.ram) > 0 && len(blob.RAM) == len(m.ram) {
		copy(m.ram, blob.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = blob.Sec, blob.Min, blob.Hour, blob.Day
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = blob.Halt, blob.Carry, blob.LastWall
	m.latchedSec, m.latchedMin, m.latchedHour = blob.LatchedSec, blob.LatchedMin, blob.LatchedHour
	m.latchedDay, m.latchedHalt, m.latchedCarry = blob.LatchedDay, blob.LatchedHalt, blob.LatchedCarry
}

type mbc3RTCBlob struct {
	RAM                                 []byte
	Sec, Min, Hour                      byte
	Day                                 uint16
	Halt, Carry                         bool
	LastWall                            int64
	LatchedSec, LatchedMin, LatchedHour byte
	LatchedDay                          uint16
	LatchedHalt, LatchedCarry           bool
}

// SaveState serializes banking registers, RAM, and RTC state for save states.
func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3State{
		RAM: m.SaveRAM(), RamEnabled: m.ramEnabled, RomBank: m.romBank, RamBank: m.ramBank,
		RTCSelected: m.rtcSelected, RTCReg: m.rtcReg, LastLatch: m.lastLatch,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.LoadRAM(s.RAM)
	m.ramEnabled, m.romBank, m.ramBank = s.RamEnabled, s.RomBank, s.RamBank
	m.rtcSelected, m.rtcReg, m.lastLatch = s.RTCSelected, s.RTCReg, s.LastLatch
}

type mbc3State struct {
	RAM               []byte
	RamEnabled        bool
	RomBank, RamBank  byte
	RTCSelected       bool
	RTCReg, LastLatch byte
}
