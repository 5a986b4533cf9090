package engine

import "strings"

// DraftDisclaimer introduces the reasoning model's draft answer in full mode.
const DraftDisclaimer = "Reference answer from the reasoning model. Use it as reference material only: " +
	"architecture and design direction may be followed, but write the final answer and any code independently:"

// ComposeHandoff wraps the reasoning, and in full mode the draft, in the
// delimiter the synthesis model sees as context rather than a turn to echo.
func ComposeHandoff(reasoning, draft string, mode ForwardMode) string {
	var b strings.Builder
	b.WriteString("<thinking>\n")
	b.WriteString(reasoning)
	if d := strings.TrimSpace(draft); mode == ModeFull && d != "" {
		b.WriteString("\n\n")
		b.WriteString(DraftDisclaimer)
		b.WriteString("\n")
		b.WriteString(d)
	}
	b.WriteString("\n</thinking>")
	return b.String()
}

// draftSuffix is the text appended to the client-visible reasoning in full
// mode. It is empty in normal mode or when there is no draft.
func draftSuffix(draft string, mode ForwardMode) string {
	d := strings.TrimSpace(draft)
	if mode != ModeFull || d == "" {
		return ""
	}
	return "\n\n" + d
}
