package help

// Header styles a main title (bold cyan).
func Header(text string) string {
	return ColorBold + ColorCyan + text + ColorReset
}

// StyleCategory styles a flag group name (bold green).
func StyleCategory(text string) string {
	return ColorBold + ColorGreen + text + ColorReset
}

// StyleFlag styles a flag name (cyan).
func StyleFlag(text string) string {
	return ColorCyan + text + ColorReset
}

// StyleArg styles a flag argument or example (yellow).
func StyleArg(text string) string {
	return ColorYellow + text + ColorReset
}

// StyleKey styles a key binding (bold yellow).
func StyleKey(text string) string {
	return ColorBold + ColorYellow + text + ColorReset
}

// Dim styles secondary text (gray).
func Dim(text string) string {
	return ColorGray + text + ColorReset
}

// Bold styles emphasized text.
func Bold(text string) string {
	return ColorBold + text + ColorReset
}
