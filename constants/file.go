package constants

import "strings"

// MaxExtLen bounds the extension kept from an uploaded file name.
const MaxExtLen = 16

// SafeExt returns ".ext" when ext is 1..MaxExtLen ASCII letters or digits, otherwise "".
// The original casing is kept.
func SafeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || len(ext) > MaxExtLen {
		return ""
	}
	for _, r := range ext {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit {
			return ""
		}
	}
	return "." + ext
}
