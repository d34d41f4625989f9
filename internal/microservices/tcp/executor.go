package tcp

import (
	"context"
	"log/slog"
	"strings"
)

// replies that do not depend on the request content
const (
	ReplyUnknownFormat      = "<error>unknown format</error>"
	ReplyLoadAvgUnavailable = "<error>load average unavailable</error>"
	ReplyRateLimited        = "<error>rate limit exceeded</error>"
)

// LoadPrecision is the number of fractional digits in a load average reply
const LoadPrecision = 6

// Executor turns a classified command into the reply string.
// It is stateless apart from its load source and safe for concurrent use.
type Executor struct {
	loadAvg LoadAverager
	logger  *slog.Logger
}

// constructor for Executor, nil arguments fall back to the host load source
// and the default logger
func NewExecutor(loadAvg LoadAverager, logger *slog.Logger) *Executor {
	if loadAvg == nil {
		loadAvg = HostLoadAverager{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{loadAvg: loadAvg, logger: logger}
}

// Execute always yields a reply; protocol problems become error replies
func (e *Executor) Execute(ctx context.Context, cmd Command) string {
	switch cmd.Kind {
	case CommandEcho:
		return e.echo(cmd.Payload)
	case CommandLoadAverage:
		return e.loadAverage(ctx)
	default:
		return ReplyUnknownFormat
	}
}

func (e *Executor) echo(message string) string {
	if !strings.HasPrefix(message, EchoOpenTag) || !strings.HasSuffix(message, EchoCloseTag) {
		return ReplyUnknownFormat
	}
	// open and close tags must not overlap
	contentLen := len(message) - len(EchoOpenTag) - len(EchoCloseTag)
	if contentLen < 0 {
		return ReplyUnknownFormat
	}
	content := message[len(EchoOpenTag) : len(EchoOpenTag)+contentLen]
	return "<reply>" + content + "</reply>"
}

func (e *Executor) loadAverage(ctx context.Context) string {
	avg, err := e.loadAvg.LoadAverage(ctx)
	if err != nil {
		e.logger.Warn("load_average_unavailable",
			"error", err.Error(),
		)
		return ReplyLoadAvgUnavailable
	}
	return FormatLoadReply(avg)
}

// FormatLoadReply renders avg as <replyLoadAvg>l1:l5:l15</replyLoadAvg>
func FormatLoadReply(avg LoadAverage) string {
	var b strings.Builder
	b.WriteString("<replyLoadAvg>")
	b.WriteString(FormatLoad(avg.Load1, LoadPrecision))
	b.WriteByte(':')
	b.WriteString(FormatLoad(avg.Load5, LoadPrecision))
	b.WriteByte(':')
	b.WriteString(FormatLoad(avg.Load15, LoadPrecision))
	b.WriteString("</replyLoadAvg>")
	return b.String()
}
