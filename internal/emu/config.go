package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // use a debug-level slog text logger on stderr; no per-instruction lines are logged
	LimitFPS bool // not read by Machine; StepFrame is never throttled
}
