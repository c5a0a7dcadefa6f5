package ui

import (
	"fmt"

	"github.com/alfredjeanlab/navgraph/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorPass   = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderWarn returns s in the warning (amber) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderState colors a step state: passed green, failed red, skipped muted.
func RenderState(s model.StepState) string {
	switch s {
	case model.StatePassed:
		return paint(colorPass, string(s))
	case model.StateFailed:
		return paint(colorFail, string(s))
	case model.StateSkipped:
		return paint(colorMuted, string(s))
	}
	return string(s)
}

// RenderHealth colors a run health classification.
func RenderHealth(h model.Health) string {
	switch h {
	case model.HealthExcellent, model.HealthGood:
		return paint(colorPass, string(h))
	case model.HealthFair:
		return paint(colorWarn, string(h))
	case model.HealthPoor:
		return paint(colorFail, string(h))
	}
	return string(h)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
