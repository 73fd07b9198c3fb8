package agent

import (
	"errors"
	"fmt"
)

// Kind classifies why a Respond call could not produce a real answer.
type Kind int

const (
	// KindTransport covers model API connection, timeout, and decode
	// failures.
	KindTransport Kind = iota
	// KindProtocol covers well-formed but unusable model responses,
	// e.g. no candidates or an empty final turn.
	KindProtocol
	// KindPersistence covers store failures on the critical path.
	KindPersistence
	// KindLoopLimit means the turn cap was reached with tool calls
	// still outstanding.
	KindLoopLimit
	// KindTool is reserved for tool dispatch failures that escalate;
	// in the normal path tool errors are fed back to the model as data
	// and never surface as a Fault.
	KindTool
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindPersistence:
		return "persistence"
	case KindLoopLimit:
		return "loop_limit"
	case KindTool:
		return "tool"
	}
	return "unknown"
}

// Fault is the typed failure Respond returns. The apology text shown to
// the user is chosen at the delivery boundary via [UserMessage], not
// here.
type Fault struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Op, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Op)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Japanese user-facing strings. Koto stays in character even when the
// backend is on fire.
const (
	msgTransportApology = "ちょっとエラーが出ちゃいました...😢"
	msgProtocolApology  = "ちょっと調子悪いみたいです...もう一度試してもらえますか？"
	msgLoopLimit        = "考えがまとまりませんでした...もう一度聞いてください。"
)

// UserMessage maps an error from Respond to the apology shown to the
// user. Boundaries (webhook, scheduler delivery, console) call this so
// the core never embeds user-facing strings in its control flow.
func UserMessage(err error) string {
	var fault *Fault
	if errors.As(err, &fault) {
		switch fault.Kind {
		case KindProtocol:
			return msgProtocolApology
		case KindLoopLimit:
			return msgLoopLimit
		}
	}
	return msgTransportApology
}
