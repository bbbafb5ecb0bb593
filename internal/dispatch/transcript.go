package dispatch

import (
	"strings"

	"golang.org/x/text/cases"
)

// Command identifies the stream operation a transcript segment maps to.
type Command string

const (
	CommandNone  Command = ""
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

const (
	stopPhrase  = "stop streaming"
	startPhrase = "start streaming"
)

var (
	folder            = cases.Fold()
	foldedStopPhrase  = folder.String(stopPhrase)
	foldedStartPhrase = folder.String(startPhrase)
)

// MatchTranscript scans a transcript segment for voice command phrases using
// Unicode case folding, so mixed-case and non-ASCII capitalizations still
// match. The stop phrase is checked first: a segment containing both phrases
// maps to a stop, never both.
func MatchTranscript(text string) Command {
	folded := folder.String(text)
	if strings.Contains(folded, foldedStopPhrase) {
		return CommandStop
	}
	if strings.Contains(folded, foldedStartPhrase) {
		return CommandStart
	}
	return CommandNone
}
