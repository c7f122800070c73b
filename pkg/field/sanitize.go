package field

import "strings"

// fallbackFileName is used when nothing of the original name survives.
const fallbackFileName = "file"

// SanitizeFileName replaces every character outside [A-Za-z0-9._-] with '_',
// collapses runs of '_' and trims leading/trailing '_'.
//
//	SanitizeFileName("My Résumé (final)v2.pdf") == "My_R_sum_final_v2.pdf"
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if !allowedFileRune(r) {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallbackFileName
	}
	return out
}

func allowedFileRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	default:
		return false
	}
}
