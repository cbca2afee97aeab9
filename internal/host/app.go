// Package host provides the ebiten-driven desktop front end: it presents
// the machine's framebuffer, maps keyboard input to the button matrix, and
// feeds the APU's PCM output to an oto player.
package host

import (
	"fmt"
	"log/slog"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/wrenvale/gbcore/internal/bus"
	"github.com/wrenvale/gbcore/internal/machine"
)

// Config holds the window/runtime settings; Title, Scale and Mute come from
// CLI flags, and SaveSlot falls back to its default.
type Config struct {
	Title      string
	Scale      int
	Mute       bool
	SaveSlot   string // path used by F5/F9 quick save/load
}

func (c *Config) defaults() {
	if c.Title == "" {
		c.Title = "gbcore"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.SaveSlot == "" {
		c.SaveSlot = "quicksave.state"
	}
}

// App implements ebiten.Game around a *machine.Machine.
type App struct {
	cfg    Config
	m      *machine.Machine
	tex    *ebiten.Image
	paused bool
	turbo  int

	otoCtx *oto.Context
	player *oto.Player
	stream *pcmStream

	log *slog.Logger
}

// NewApp wires an ebiten game around m using cfg for window/audio settings.
func NewApp(cfg Config, m *machine.Machine) (*App, error) {
	cfg.defaults()
	ebiten.SetWindowTitle(windowTitle(cfg, m))
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)

	a := &App{
		cfg: cfg, m: m, turbo: 1,
		tex: ebiten.NewImage(160, 144),
		log: slog.Default().With("component", "host"),
	}

	opts := &oto.NewContextOptions{
		SampleRate:   bus.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	<-ready
	a.otoCtx = ctx
	a.stream = &pcmStream{m: m, muted: cfg.Mute}
	a.player = ctx.NewPlayer(a.stream)
	a.player.Play()

	return a, nil
}

func windowTitle(cfg Config, m *machine.Machine) string {
	if t := m.ROMTitle(); t != "" {
		return cfg.Title + " - " + t
	}
	return cfg.Title
}

// Run blocks running the ebiten game loop until the window closes.
func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.m.SaveStateToFile(a.cfg.SaveSlot); err != nil {
			a.log.Warn("save state failed", "err", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := a.m.LoadStateFromFile(a.cfg.SaveSlot); err != nil {
			a.log.Warn("load state failed", "err", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		a.stream.muted = !a.stream.muted
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF6) && a.turbo > 1 {
		a.turbo--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF7) && a.turbo < 8 {
		a.turbo++
	}

	a.m.SetButtons(a.readButtons())

	if a.paused {
		return nil
	}
	for i := 0; i < a.turbo; i++ {
		a.m.StepFrame()
	}
	return nil
}

func (a *App) readButtons() machine.Buttons {
	return machine.Buttons{
		Right:  ebiten.IsKeyPressed(ebiten.KeyArrowRight),
		Left:   ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Up:     ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
	}
}

func (a *App) Draw(screen *ebiten.Image) {
	a.tex.WritePixels(a.m.Framebuffer())
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(a.cfg.Scale), float64(a.cfg.Scale))
	screen.DrawImage(a.tex, op)
	if a.paused {
		ebitenutil.DebugPrint(screen, "PAUSED")
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 160 * a.cfg.Scale, 144 * a.cfg.Scale
}
