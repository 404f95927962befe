// Command cpurunner drives a CPU-instruction test ROM headlessly against
// the serial debug stream, matching blargg-style "Passed"/"Failed N tests"
// output, with optional tracing and stop conditions. This is test tooling,
// not part of the emulator's host surface.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mwilloughby/gbcore/internal/bus"
	"github.com/mwilloughby/gbcore/internal/cpu"
)

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type traceEntry struct {
	pc                       uint16
	op                       byte
	cyc                      int
	a, f, b, c, d, e, h, l   byte
	sp                       uint16
	ime                      bool
	ifreg, ie                byte
}

func (te traceEntry) String() string {
	return fmt.Sprintf("PC=%04X OP=%02X cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t IF=%02X IE=%02X",
		te.pc, te.op, te.cyc, te.a, te.f, te.b, te.c, te.d, te.e, te.h, te.l, te.sp, te.ime, te.ifreg, te.ie)
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	bootPath := flag.String("bootrom", "", "optional DMG boot ROM to run from 0x0000")
	steps := flag.Int("steps", 5_000_000, "max CPU steps to run")
	startPC := flag.Int("pc", 0x0100, "initial PC value (ignored when a boot ROM is supplied)")
	trace := flag.Bool("trace", false, "print PC/opcode/register trace")
	until := flag.String("until", "Passed", "stop when serial output contains this substring; empty disables")
	auto := flag.Bool("auto", false, "detect 'Passed'/'Failed N tests' in serial output and exit 0/1")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout; 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "with -auto, dump a recent trace window on failure")
	traceWindow := flag.Int("traceWindow", 200, "instructions retained for -traceOnFail")
	serialWindowFlag := flag.Int("serialWindow", 8192, "bytes of serial history retained for diagnostics")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var boot []byte
	if *bootPath != "" {
		boot, err = os.ReadFile(*bootPath)
		if err != nil {
			log.Fatalf("read bootrom: %v", err)
		}
	}

	b, err := bus.New(rom)
	if err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if len(boot) >= 0x100 {
		b.SetBootROM(boot)
	}

	serialWindow := *serialWindowFlag
	if serialWindow < 256 {
		serialWindow = 256
	}
	serRing := make([]byte, serialWindow)
	serRingIdx, serRingFill := 0, 0

	var ser bytes.Buffer
	w := io.Writer(os.Stdout)
	if *until != "" || *auto {
		w = io.MultiWriter(os.Stdout, &ser, writerFunc(func(p []byte) (int, error) {
			for _, ch := range p {
				serRing[serRingIdx] = ch
				serRingIdx = (serRingIdx + 1) % serialWindow
				if serRingFill < serialWindow {
					serRingFill++
				}
			}
			return len(p), nil
		}))
	}
	b.SetSerialWriter(w)

	c := cpu.New(b)
	if len(boot) >= 0x100 {
		c.SP = 0xFFFE
		c.SetPC(0x0000)
	} else {
		c.ResetNoBoot()
		c.SetPC(uint16(*startPC))
		b.Write(0xFF00, 0xCF)
		b.Write(0xFF05, 0x00)
		b.Write(0xFF06, 0x00)
		b.Write(0xFF07, 0x00)
		b.Write(0xFF40, 0x91)
		b.Write(0xFF42, 0x00)
		b.Write(0xFF43, 0x00)
		b.Write(0xFF45, 0x00)
		b.Write(0xFF47, 0xFC)
		b.Write(0xFF48, 0xFF)
		b.Write(0xFF49, 0xFF)
		b.Write(0xFF4A, 0x00)
		b.Write(0xFF4B, 0x00)
		b.Write(0xFFFF, 0x00)
	}

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)
	stageRe := regexp.MustCompile(`\b(\d{2}:\d{2})\b`)
	lastStage := ""

	ring := make([]traceEntry, *traceWindow)
	ringIdx, ringFill := 0, 0
	var cycles int

	for i := 0; i < *steps; i++ {
		pc := c.PC
		var op byte
		if *trace || *traceOnFail {
			op = b.Read(pc)
		}
		cyc := c.Step()
		cycles += cyc
		if *trace || *traceOnFail {
			te := traceEntry{
				pc: pc, op: op, cyc: cyc,
				a: c.A, f: c.F, b: c.B, c: c.C, d: c.D, e: c.E, h: c.H, l: c.L,
				sp: c.SP, ime: c.IME, ifreg: b.Read(0xFF0F), ie: b.Read(0xFFFF),
			}
			if *trace {
				fmt.Println(te.String())
			}
			if *traceOnFail && *traceWindow > 0 {
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % *traceWindow
				if ringFill < *traceWindow {
					ringFill++
				}
			}
		}

		if *auto {
			s := ser.String()
			if mm := stageRe.FindAllString(s, -1); len(mm) > 0 {
				lastStage = mm[len(mm)-1]
			}
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS in serial output.\n")
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				os.Exit(0)
			}
			if m := failRe.FindStringSubmatch(s); m != nil {
				fmt.Printf("\nDetected %s in serial output.\n", m[0])
				if lastStage != "" {
					fmt.Printf("Last stage seen: %s\n", lastStage)
				}
				if *traceOnFail && ringFill > 0 {
					fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ringFill)
					startIdx := (ringIdx - ringFill + *traceWindow) % *traceWindow
					for j := 0; j < ringFill; j++ {
						fmt.Println(ring[(startIdx+j)%(*traceWindow)].String())
					}
					fmt.Printf("--- end trace ---\n")
				}
				if serRingFill > 0 {
					fmt.Printf("\n--- recent serial (last %d bytes) ---\n", serRingFill)
					startIdx := (serRingIdx - serRingFill + serialWindow) % serialWindow
					for j := 0; j < serRingFill; j++ {
						fmt.Printf("%c", serRing[(startIdx+j)%serialWindow])
					}
					fmt.Printf("\n--- end serial ---\n")
				}
				fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				os.Exit(1)
			}
		} else if *until != "" {
			if strings.Contains(strings.ToLower(ser.String()), strings.ToLower(*until)) {
				fmt.Printf("\nDetected %q in serial output.\n", *until)
				fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				return
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n", *steps, cycles, time.Since(start).Truncate(time.Millisecond))
}
