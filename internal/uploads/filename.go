package uploads

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var windowsDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SecureFilename reduces a user supplied name to a flat ASCII filename.
// Accents are folded ("résumé.pdf" becomes "resume.pdf"), path separators and
// whitespace become underscores, and other characters are dropped. The result
// may be empty.
func SecureFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	cleaned = strings.NewReplacer("/", " ", "\\", " ").Replace(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = unsafeFilenameChars.ReplaceAllString(cleaned, "")
	cleaned = strings.Trim(cleaned, "._")

	if cleaned != "" {
		stem := strings.ToUpper(strings.SplitN(cleaned, ".", 2)[0])
		if _, reserved := windowsDeviceNames[stem]; reserved {
			cleaned = "_" + cleaned
		}
	}
	return cleaned
}

// ExtensionPolicy decides which file extensions may be uploaded.
type ExtensionPolicy struct {
	allowed map[string]struct{}
}

// NewExtensionPolicy builds a policy from extensions with or without a leading dot.
func NewExtensionPolicy(extensions []string) ExtensionPolicy {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return ExtensionPolicy{allowed: allowed}
}

// Allowed reports whether filename carries a permitted extension.
func (p ExtensionPolicy) Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	_, ok := p.allowed[ext]
	return ok
}

// Extensions lists the permitted extensions in sorted order.
func (p ExtensionPolicy) Extensions() []string {
	out := make([]string, 0, len(p.allowed))
	for ext := range p.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
