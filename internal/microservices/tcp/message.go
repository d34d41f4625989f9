package tcp

import "strings"

// wire tags recognised by the server
const (
	EchoOpenTag    = "<echo>"
	EchoCloseTag   = "</echo>"
	LoadAverageTag = "<loadavg/>"
)

// CommandKind is the classification of one received message
type CommandKind int

const (
	CommandMalformed CommandKind = iota
	CommandEcho
	CommandLoadAverage
)

func (k CommandKind) String() string {
	switch k {
	case CommandEcho:
		return "echo"
	case CommandLoadAverage:
		return "loadavg"
	default:
		return "malformed"
	}
}

// Command lives for a single request. Echo commands carry the whole message
// so the executor can check the closing tag.
type Command struct {
	Kind    CommandKind
	Payload string
}

// Classify routes a message by its literal, case-sensitive prefix.
// It never fails: anything unrecognised is CommandMalformed.
func Classify(message string) Command {
	switch {
	case strings.HasPrefix(message, EchoOpenTag):
		return Command{Kind: CommandEcho, Payload: message}
	case strings.HasPrefix(message, LoadAverageTag):
		return Command{Kind: CommandLoadAverage}
	default:
		return Command{Kind: CommandMalformed}
	}
}

// TrimMessage drops a single trailing newline, if present
func TrimMessage(raw []byte) string {
	if n := len(raw); n > 0 && raw[n-1] == '\n' {
		raw = raw[:n-1]
	}
	return string(raw)
}
