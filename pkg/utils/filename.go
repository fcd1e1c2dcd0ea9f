package utils

import (
	"fmt"
	"path"
	"strings"
)

// SanitizeFilename reduces a user supplied filename to a safe base name for archives
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "photo"
	}
	return name
}

// SplitExtension splits a filename into base name and extension (with the dot).
// A leading dot is part of the base name.
func SplitExtension(name string) (string, string) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return name, ""
	}
	return name[:dot], name[dot:]
}

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes renders a size in binary units for log lines and error messages
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	value := float64(n) / 1024
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", value, byteUnits[unit])
}
