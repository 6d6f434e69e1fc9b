package library

import "strings"

// Mojibake sequences produced when UTF-8 titles were decoded as CP437/Windows-1252.
var mojibakeReplacer = strings.NewReplacer(
	"ŌĆÖ", "'",
	"ŌĆō", "-",
	"├Č", "ö",
	"ŌĆ£", `"`,
	"ŌĆØ", `"`,
	`ŌĆ"`, "...",
	"ŌĆś", "'",
)

var quoteReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"/", "-",
	":", "-",
)

var forbiddenReplacer = strings.NewReplacer(
	"<", "",
	">", "",
	":", "",
	`"`, "",
	"/", "",
	`\`, "",
	"|", "",
	"?", "",
	"*", "",
)

// SanitizeName maps a display title to the name used for the item folder,
// sidecar file, registry key and worker argument.
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	out := mojibakeReplacer.Replace(name)
	out = quoteReplacer.Replace(out)
	out = forbiddenReplacer.Replace(out)
	return strings.TrimSpace(out)
}
