// Command gbemu runs a Game Boy ROM, either windowed (via internal/ui) or
// headless for scripted smoke tests.
package main

import (
	"errors"
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mwilloughby/gbcore/internal/cart"
	"github.com/mwilloughby/gbcore/internal/emu"
	"github.com/mwilloughby/gbcore/internal/ui"
)

type cliFlags struct {
	bootROM string
	scale   int
	title   string
	trace   bool
	save    bool

	headless bool
	frames   int
	pngOut   string
	expect   string
}

func parseFlags() (cliFlags, string) {
	var f cliFlags
	flag.StringVar(&f.bootROM, "boot", "", "optional DMG boot ROM")
	flag.IntVar(&f.scale, "scale", 3, "window scale")
	flag.StringVar(&f.title, "title", "gbemu", "window title")
	flag.BoolVar(&f.trace, "trace", false, "enable debug-level logging")
	flag.BoolVar(&f.save, "save", true, "persist battery RAM to a .sav sidecar")
	flag.BoolVar(&f.headless, "headless", false, "run without opening a window")
	flag.IntVar(&f.frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.pngOut, "png", "", "write the last headless framebuffer to this PNG path")
	flag.StringVar(&f.expect, "expect", "", "assert the headless framebuffer's CRC32 (hex)")
	flag.Parse()
	return f, flag.Arg(0)
}

// exitCode maps the known sentinel error kinds to distinct process exit
// codes, per the host contract: 0 on normal shutdown, a distinguishable
// non-zero code for a RomLoadFailure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var rlf *cart.RomLoadFailure
	if errors.As(err, &rlf) {
		return 2
	}
	return 1
}

func main() {
	f, romPath := parseFlags()
	if romPath == "" {
		log.Fatal("usage: gbemu [flags] <rom.gb>")
	}

	m := emu.New(emu.Config{Trace: f.trace})
	if f.bootROM != "" {
		boot, err := os.ReadFile(f.bootROM)
		if err != nil {
			log.Fatalf("read boot ROM: %v", err)
		}
		m.SetBootROM(boot)
	}

	if err := m.LoadROMFromFile(romPath); err != nil {
		log.Printf("load ROM: %v", err)
		os.Exit(exitCode(err))
	}

	savePath := m.SavePath()
	if f.save && savePath != "" {
		if data, err := os.ReadFile(savePath); err == nil {
			if m.LoadBattery(data) {
				log.Printf("loaded save RAM: %s (%d bytes)", savePath, len(data))
			}
		}
	}

	var runErr error
	if f.headless {
		runErr = runHeadless(m, f.frames, f.pngOut, f.expect)
	} else {
		app := ui.NewApp(ui.Config{Title: f.title, Scale: f.scale}, m)
		runErr = app.Run()
	}

	if f.save && savePath != "" {
		if data, ok := m.SaveBattery(); ok {
			if err := os.WriteFile(savePath, data, 0644); err == nil {
				log.Printf("wrote %s", savePath)
			}
		}
	}

	if runErr != nil {
		log.Printf("%v", runErr)
		os.Exit(exitCode(runErr))
	}
}

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
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
	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), float64(frames)/dur.Seconds(), crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
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

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{Pix: append([]byte(nil), pix...), Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
