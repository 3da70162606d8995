package email

import (
	"strings"

	"github.com/rs/zerolog"
)

// DebugWriter logs raw IMAP protocol traffic at trace level. Lines that
// carry credentials are replaced before they reach the log.
type DebugWriter struct {
	log zerolog.Logger
}

func (w *DebugWriter) Write(p []byte) (int, error) {
	if w.log.GetLevel() > zerolog.TraceLevel {
		return len(p), nil
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		w.log.Trace().Str("imap_data", redactLine(strings.TrimRight(line, "\r"))).Msg("imap protocol")
	}
	return len(p), nil
}

// redactLine hides the arguments of LOGIN and AUTHENTICATE commands and
// bare SASL continuation payloads. A command line is "<tag> <command> ...".
func redactLine(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 1 && len(line) >= 16 && isBase64(line) {
		return "[redacted]"
	}
	if len(fields) < 2 {
		return line
	}
	switch strings.ToUpper(fields[1]) {
	case "LOGIN", "AUTHENTICATE":
		return fields[0] + " " + strings.ToUpper(fields[1]) + " [redacted]"
	}
	return line
}

func isBase64(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=':
		default:
			return false
		}
	}
	return true
}
