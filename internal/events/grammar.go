package events

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/model"
)

// Grammar selects how the extensions of a bridge are read.
type Grammar string

const (
	// GrammarChannel derives extensions from Channel1/Channel2.
	GrammarChannel Grammar = "channel"

	// GrammarCallerID takes CallerID1/CallerID2 as the extensions, as
	// older PBX releases report them.
	GrammarCallerID Grammar = "callerid"
)

// ParseGrammar validates a grammar name; empty selects GrammarChannel.
func ParseGrammar(s string) (Grammar, error) {
	switch g := Grammar(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GrammarChannel, nil
	case GrammarChannel, GrammarCallerID:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGrammar, s)
	}
}

// fields returns the frame keys the grammar needs on a bridge event.
func (g Grammar) fields() []string {
	if g == GrammarCallerID {
		return []string{"CallerID1", "CallerID2"}
	}
	return []string{"Channel1", "Channel2"}
}

// bridge reads both legs of a bridge event.
func (g Grammar) bridge(f ami.Frame) Bridge {
	b := Bridge{Channel1: f.Get("Channel1"), Channel2: f.Get("Channel2")}
	if g == GrammarCallerID {
		b.Exten1 = f.Get("CallerID1")
		b.Exten2 = f.Get("CallerID2")
		return b
	}
	b.Exten1 = model.ExtensionOf(b.Channel1)
	b.Exten2 = model.ExtensionOf(b.Channel2)
	return b
}

// callerName hides the placeholder the PBX reports for anonymous callers.
func callerName(s string) string {
	if s == "<unknown>" {
		return ""
	}
	return s
}

// peerName strips the technology prefix: "SIP/200" gives "200".
func peerName(peer string) string {
	if _, after, ok := strings.Cut(peer, "/"); ok {
		return after
	}
	return peer
}

// memberLocation returns the member interface of a queue event; older
// releases call it Location.
func memberLocation(f ami.Frame) string {
	return f.Or("Interface", f.Get("Location"))
}
