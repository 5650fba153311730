package theme

import (
	"github.com/pterm/pterm"
)

// Theme is the colour scheme used for terminal logging
type Theme struct {
	// log levels
	Debug *pterm.Style
	Info  *pterm.Style
	Warn  *pterm.Style
	Error *pterm.Style
	Fatal *pterm.Style

	// components
	Success   *pterm.Style
	Highlight *pterm.Style
	Muted     *pterm.Style
	Accent    *pterm.Style

	// gateway entities
	Backend  pterm.Color
	Frontend pterm.Color
	Model    pterm.Color
	Counts   pterm.Color
	Numbers  pterm.Color

	// health states
	HealthHealthy   pterm.Color
	HealthUnhealthy pterm.Color
	HealthUnknown   pterm.Color

	// model sync
	SyncAvailable pterm.Color
	SyncSyncing   pterm.Color
	SyncFailed    pterm.Color
}

func Default() *Theme {
	return &Theme{
		Debug: pterm.NewStyle(pterm.FgLightBlue),
		Info:  pterm.NewStyle(pterm.FgGreen),
		Warn:  pterm.NewStyle(pterm.FgYellow, pterm.Bold),
		Error: pterm.NewStyle(pterm.FgRed, pterm.Bold),
		Fatal: pterm.NewStyle(pterm.FgWhite, pterm.BgRed, pterm.Bold),

		Success:   pterm.NewStyle(pterm.FgGreen, pterm.Bold),
		Highlight: pterm.NewStyle(pterm.FgCyan, pterm.Bold),
		Muted:     pterm.NewStyle(pterm.FgGray),
		Accent:    pterm.NewStyle(pterm.FgMagenta),

		Backend:  pterm.FgCyan,
		Frontend: pterm.FgLightMagenta,
		Model:    pterm.FgLightBlue,
		Counts:   pterm.FgGray,
		Numbers:  pterm.FgLightYellow,

		HealthHealthy:   pterm.FgGreen,
		HealthUnhealthy: pterm.FgRed,
		HealthUnknown:   pterm.FgGray,

		SyncAvailable: pterm.FgGreen,
		SyncSyncing:   pterm.FgYellow,
		SyncFailed:    pterm.FgRed,
	}
}

// Dark leans on the light variants so text stays readable on black.
func Dark() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgLightGreen)
	t.Warn = pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)
	t.Error = pterm.NewStyle(pterm.FgLightRed, pterm.Bold)
	t.Backend = pterm.FgLightCyan
	t.HealthHealthy = pterm.FgLightGreen
	t.HealthUnhealthy = pterm.FgLightRed
	t.SyncAvailable = pterm.FgLightGreen
	t.SyncSyncing = pterm.FgLightYellow
	t.SyncFailed = pterm.FgLightRed
	return t
}

func Light() *Theme {
	t := Default()
	t.Info = pterm.NewStyle(pterm.FgBlack)
	t.Warn = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	t.Backend = pterm.FgBlue
	t.Frontend = pterm.FgMagenta
	t.Numbers = pterm.FgBlue
	return t
}

func GetTheme(name string) *Theme {
	switch name {
	case "dark":
		return Dark()
	case "light":
		return Light()
	default:
		return Default()
	}
}

func ColourSplash(message ...any) string {
	return pterm.LightCyan(message...)
}

func ColourVersion(message ...any) string {
	return pterm.LightYellow(message...)
}

func StyleUrl(message ...any) string {
	return pterm.LightBlue(message...)
}

// Hyperlink wraps text in an OSC 8 terminal hyperlink
func Hyperlink(uri string, text string) string {
	return "\x1b]8;;" + uri + "\x07" + text + "\x1b]8;;\x07" + "\u001b[0m"
}
