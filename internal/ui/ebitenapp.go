package ui

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/mwilloughby/gbcore/internal/emu"
)

// App is the ebiten host: a thin sink for the Machine's 160x144 framebuffer
// and a source of its eight joypad buttons.
type App struct {
	cfg    Config
	m      *emu.Machine
	tex    *ebiten.Image
	paused bool
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	return &App{cfg: cfg, m: m}
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.m.SetButtons(btn)

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	if a.paused {
		if inpututil.IsKeyJustPressed(ebiten.KeyN) {
			a.m.StepFrame()
		}
		return nil
	}
	a.m.StepFrame()
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.m.Framebuffer())
	screen.DrawImage(a.tex, nil)
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }
