package cart

import "testing"

func TestMBC5_ROMBanking_9Bit(t *testing.T) {
	// 8MB ROM so bank 256 (needs the 9th bit) exists.
	rom := make([]byte, 8*1024*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	rom[256*0x4000] = 0xAA
	m := NewMBC5(rom, 0)

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bank read got %02X want 01", got)
	}

	// Select bank 256: low byte 0x00, high bit set.
	m.Write(0x2000, 0x00)
	m.Write(0x3000, 0x01)
	if got := m.Read(0x4000); got != 0xAA {
		t.Fatalf("bank256 read got %02X want AA", got)
	}

	// Unlike MBC1/MBC3, writing 0 to the low bank byte is honored as bank 0.
	m.Write(0x3000, 0x00)
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}
}

func TestMBC5_RAMBankingAndPersistence(t *testing.T) {
	rom := make([]byte, 128*1024)
	m := NewMBC5(rom, 4*8*1024) // 4 RAM banks

	m.Write(0x0000, 0x0A) // enable RAM
	m.Write(0x4000, 0x03) // select RAM bank 3
	m.Write(0xA000, 0x55)
	if got := m.Read(0xA000); got != 0x55 {
		t.Fatalf("RAM bank3 RW failed: got %02X", got)
	}

	saved := m.SaveRAM()
	m2 := NewMBC5(rom, 4*8*1024)
	m2.LoadRAM(saved)
	m2.Write(0x0000, 0x0A)
	m2.Write(0x4000, 0x03)
	if got := m2.Read(0xA000); got != 0x55 {
		t.Fatalf("RAM not restored after LoadRAM: got %02X", got)
	}
}

func TestMBC5_SaveAndLoadState(t *testing.T) {
	rom := make([]byte, 128*1024)
	for bank := 0; bank < 8; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC5(rom, 8*1024)
	m.Write(0x0000, 0x0A)
	m.Write(0x2000, 0x05)
	m.Write(0x4000, 0x00)
	m.Write(0xA000, 0x99)

	blob := m.SaveState()

	m2 := NewMBC5(rom, 8*1024)
	m2.LoadState(blob)
	if got := m2.Read(0x4000); got != 0x05 {
		t.Fatalf("ROM bank not restored: got %02X want 05", got)
	}
	if got := m2.Read(0xA000); got != 0x99 {
		t.Fatalf("RAM not restored via LoadState: got %02X want 99", got)
	}
}
