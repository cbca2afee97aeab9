// Command gbcore runs the emulator, either in a windowed ebiten front end
// or headless for scripted frame dumps.
package main

import (
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/image/draw"

	"github.com/wrenvale/gbcore/internal/cart"
	"github.com/wrenvale/gbcore/internal/host"
	"github.com/wrenvale/gbcore/internal/machine"
)

func main() {
	app := cli.NewApp()
	app.Name = "gbcore"
	app.Usage = "Game Boy (DMG) emulator"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb)"},
		cli.StringFlag{Name: "bootrom", Usage: "optional DMG boot ROM"},
		cli.IntFlag{Name: "scale", Value: 3, Usage: "window scale"},
		cli.StringFlag{Name: "title", Value: "gbcore", Usage: "window title"},
		cli.BoolFlag{Name: "mute", Usage: "start with audio muted"},
		cli.BoolFlag{Name: "save", Usage: "persist/load battery RAM as ROM.sav"},
		cli.BoolFlag{Name: "headless", Usage: "run without a window"},
		cli.IntFlag{Name: "frames", Value: 300, Usage: "frames to run in headless mode"},
		cli.StringFlag{Name: "outpng", Usage: "write the last framebuffer to PNG"},
		cli.IntFlag{Name: "pngscale", Value: 1, Usage: "nearest-neighbor scale factor applied to -outpng"},
		cli.StringFlag{Name: "expect", Usage: "assert framebuffer CRC32 (hex)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("gbcore exited with error", "err", err)
		os.Exit(1)
	}
}

// run is the emulator's main loop entry point. A panic from the CPU on an
// undefined opcode (or any other unrecovered fault deep in the machine) is
// caught here so a broken ROM exits cleanly instead of crashing the process
// with corrupted CPU state still in flight.
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

	if h, err := cart.ParseHeader(rom); err == nil {
		slog.Info("cartridge loaded", "title", h.Title, "type", h.CartTypeStr, "rom_banks", h.ROMBanks, "ram_bytes", h.RAMSizeBytes)
	}

	m := machine.New()
	if err := m.LoadCartridge(rom, boot); err != nil {
		return cli.NewExitError(fmt.Sprintf("load cartridge: %v", err), 2)
	}

	absPath, err := filepath.Abs(romPath)
	if err != nil {
		absPath = romPath
	}
	m.SetROMPath(absPath)
	savPath := strings.TrimSuffix(absPath, filepath.Ext(absPath)) + ".sav"
	if c.Bool("save") {
		if err := m.LoadBatteryFile(savPath); err != nil {
			slog.Warn("load battery RAM failed", "path", savPath, "err", err)
		}
	}

	if c.Bool("headless") {
		if err := runHeadless(m, c.Int("frames"), c.String("outpng"), c.Int("pngscale"), c.String("expect")); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if c.Bool("save") {
			_ = m.SaveBattery(savPath)
		}
		return nil
	}

	cfg := host.Config{Title: c.String("title"), Scale: c.Int("scale"), Mute: c.Bool("mute")}
	a, err := host.NewApp(cfg, m)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("init host: %v", err), 1)
	}
	if err := a.Run(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if c.Bool("save") {
		_ = m.SaveBattery(savPath)
	}
	return nil
}

func runHeadless(m *machine.Machine, frames int, pngPath string, pngScale int, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer()
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()
	slog.Info("headless run complete", "frames", frames, "elapsed", dur.Truncate(time.Millisecond), "fps", fps, "fb_crc32", fmt.Sprintf("%08x", crc))

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngScale, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

// saveFramePNG writes the 160x144 RGBA framebuffer to path, optionally
// nearest-neighbor scaled up so dumped frames are easier to inspect by eye.
func saveFramePNG(pix []byte, w, h, scale int, path string) error {
	src := &image.RGBA{
		Pix:    pix,
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	var out image.Image = src
	if scale > 1 {
		dst := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		out = dst
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}
