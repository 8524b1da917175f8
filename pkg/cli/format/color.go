// Package format renders CLI output: colors, status labels and errors.
package format

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	ErrorColor     = color.New(color.FgRed, color.Bold)
	WarningColor   = color.New(color.FgYellow, color.Bold)
	SuccessColor   = color.New(color.FgGreen, color.Bold)
	InfoColor      = color.New(color.FgCyan)
	HighlightColor = color.New(color.FgCyan, color.Bold)
	DimColor       = color.New(color.FgHiBlack)
	LineColor      = color.New(color.FgHiGreen)
)

func init() {
	// color already honours NO_COLOR and non-terminal stdout.
	if _, ok := os.LookupEnv("CONFIGURINE_NO_COLOR"); ok {
		color.NoColor = true
	}
	if _, ok := os.LookupEnv("CONFIGURINE_FORCE_COLOR"); ok {
		color.NoColor = false
	}
}

// EnableColor enables or disables colored output globally.
func EnableColor(enable bool) {
	color.NoColor = !enable
}

// IsColorEnabled returns whether colored output is enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

func Success(format string, a ...interface{}) string {
	return SuccessColor.Sprintf(format, a...)
}

func Warning(format string, a ...interface{}) string {
	return WarningColor.Sprintf(format, a...)
}

func Error(format string, a ...interface{}) string {
	return ErrorColor.Sprintf(format, a...)
}

func Info(format string, a ...interface{}) string {
	return InfoColor.Sprintf(format, a...)
}

func Highlight(format string, a ...interface{}) string {
	return HighlightColor.Sprintf(format, a...)
}

func Dim(format string, a ...interface{}) string {
	return DimColor.Sprintf(format, a...)
}

// StatusSymbol returns a colorized check or cross.
func StatusSymbol(ok bool) string {
	if ok {
		return SuccessColor.Sprint("✓")
	}
	return ErrorColor.Sprint("✗")
}

// Label formats a key and value with a label style.
func Label(key, value string) string {
	return fmt.Sprintf("%s %s", HighlightColor.Sprint(key+":"), value)
}

// StatusLabel colors a health or activity status.
func StatusLabel(status string) string {
	status = strings.ToLower(status)
	switch status {
	case "ok", "healthy", "active", "yes", "admin", "confirmed":
		return SuccessColor.Sprint(status)
	case "pending", "unconfirmed", "inactive":
		return WarningColor.Sprint(status)
	case "error", "unhealthy", "unavailable", "degraded":
		return ErrorColor.Sprint(status)
	default:
		return status
	}
}
