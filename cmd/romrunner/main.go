// Command romrunner drives a ROM headlessly and watches its serial port for
// a Blargg-style "Passed"/"Failed N tests" marker, exiting 0/1/2 so it can
// gate CI. It replaces poking at the emulator over ad hoc flags with the
// same cartridge/machine wiring cmd/gbcore uses.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/wrenvale/gbcore/internal/cpu"
	"github.com/wrenvale/gbcore/internal/machine"
)

func main() {
	app := cli.NewApp()
	app.Name = "romrunner"
	app.Usage = "run a Blargg-style conformance ROM and report pass/fail from its serial output"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb)"},
		cli.StringFlag{Name: "bootrom", Usage: "optional DMG boot ROM to run from 0x0000"},
		cli.IntFlag{Name: "steps", Value: 5_000_000, Usage: "max CPU instructions to run"},
		cli.DurationFlag{Name: "timeout", Usage: "wall-clock timeout (e.g. 30s); 0 disables"},
		cli.BoolFlag{Name: "trace", Usage: "print PC/opcode/registers per instruction"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("romrunner exited with error", "err", err)
		os.Exit(1)
	}
}

// ringWriter adapts a fixed-size byte ring to io.Writer, used to keep the
// last N bytes of serial output around for a failure report without
// unbounded growth.
type ringWriter struct {
	buf []byte
	idx int
	n   int
}

func newRingWriter(size int) *ringWriter {
	if size < 256 {
		size = 256
	}
	return &ringWriter{buf: make([]byte, size)}
}

func (r *ringWriter) Write(p []byte) (int, error) {
	for _, ch := range p {
		r.buf[r.idx] = ch
		r.idx = (r.idx + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		}
	}
	return len(p), nil
}

func (r *ringWriter) String() string {
	start := (r.idx - r.n + len(r.buf)) % len(r.buf)
	out := make([]byte, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return string(out)
}

var failRe = regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)

// run drives the ROM to completion. A panic from the CPU on an undefined
// opcode is caught here so a broken conformance ROM is reported as a failure
// rather than crashing the runner process.
func run(c *cli.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fatal emulation error, stopping", "panic", r)
			err = cli.NewExitError(fmt.Sprintf("fatal: %v", r), 2)
		}
	}()

	romPath := c.String("rom")
	if romPath == "" {
		return cli.NewExitError("missing -rom", 2)
	}
	rom, err := os.ReadFile(romPath)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("read ROM: %v", err), 2)
	}
	var boot []byte
	if bp := c.String("bootrom"); bp != "" {
		if boot, err = os.ReadFile(bp); err != nil {
			return cli.NewExitError(fmt.Sprintf("read boot ROM: %v", err), 2)
		}
	}

	m := machine.New()
	if err := m.LoadCartridge(rom, boot); err != nil {
		return cli.NewExitError(fmt.Sprintf("load cartridge: %v", err), 2)
	}

	var serial bytes.Buffer
	ring := newRingWriter(8192)
	m.Bus().SetSerialWriter(io.MultiWriter(&serial, ring))

	trace := c.Bool("trace")
	steps := c.Int("steps")
	var deadline time.Time
	if d := c.Duration("timeout"); d > 0 {
		deadline = time.Now().Add(d)
	}

	start := time.Now()
	var cycles int
	cp := m.CPU()
	for i := 0; i < steps; i++ {
		cyc := tickInstruction(m, cp)
		cycles += cyc
		if trace {
			fmt.Printf("PC=%04X A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t\n",
				cp.PC, cp.A, cp.F, cp.B, cp.C, cp.D, cp.E, cp.H, cp.L, cp.SP, cp.IME)
		}

		s := serial.String()
		if strings.Contains(strings.ToLower(s), "passed") {
			report(i, cycles, start, "PASS", 0)
			return nil
		}
		if mm := failRe.FindStringSubmatch(s); mm != nil {
			fmt.Fprintf(os.Stderr, "--- recent serial ---\n%s\n--- end serial ---\n", ring.String())
			report(i, cycles, start, "FAIL: "+mm[0], 1)
			return cli.NewExitError("test ROM reported failure", 1)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			report(i, cycles, start, "TIMEOUT", 2)
			return cli.NewExitError("timed out waiting for pass/fail marker", 2)
		}
	}
	report(steps, cycles, start, "EXHAUSTED STEPS", 2)
	return cli.NewExitError("exhausted -steps without a pass/fail marker", 2)
}

func report(steps, cycles int, start time.Time, verdict string, code int) {
	slog.Info("romrunner done", "verdict", verdict, "steps", steps, "cycles", cycles,
		"elapsed", time.Since(start).Truncate(time.Millisecond))
}

// tickInstruction advances the machine by exactly one CPU instruction
// (including its trailing busy M-cycles), ticking every other clock domain
// in lockstep, and returns the T-cycles it consumed.
func tickInstruction(m *machine.Machine, c *cpu.CPU) int {
	b := m.Bus()
	cycles := 0
	tickM := func() {
		for i := 0; i < 4; i++ {
			b.TickT()
		}
		b.TickDMA()
		c.Tick()
		cycles += 4
	}
	tickM()
	for c.Busy() {
		tickM()
	}
	return cycles
}
