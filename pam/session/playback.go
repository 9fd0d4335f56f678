package session

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimelineEntry pairs a command with the delta since the previous
// command in the same session.
type TimelineEntry struct {
	Command       *SessionCommand
	DeltaFromPrev time.Duration
}

// Timeline returns sessionID's commands in sequence, each annotated
// with the elapsed time since the prior command.
func Timeline(ctx context.Context, store Store, sessionID string) ([]TimelineEntry, error) {
	cmds, err := store.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries := make([]TimelineEntry, len(cmds))
	var prev time.Time
	for i, cmd := range cmds {
		delta := time.Duration(0)
		if i > 0 {
			delta = cmd.ExecutedAt.Sub(prev)
		}
		entries[i] = TimelineEntry{Command: cmd, DeltaFromPrev: delta}
		prev = cmd.ExecutedAt
	}
	return entries, nil
}

// Frame is the result of FrameAt: the command current as of offset t
// into the session, plus its neighbors for scrubbing forward/backward.
type Frame struct {
	Previous *SessionCommand
	Current  *SessionCommand
	Next     *SessionCommand
}

// FrameAt returns the commands whose ExecutedAt-session.StartedAt <= t,
// with {previous, current, next} cursors for a playback UI, per
// spec §4.8's frameAt operation.
func FrameAt(ctx context.Context, store Store, sessionID string, t time.Duration) (*Frame, error) {
	sess, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cmds, err := store.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	frame := &Frame{}
	for i, cmd := range cmds {
		elapsed := cmd.ExecutedAt.Sub(sess.StartedAt)
		if elapsed <= t {
			frame.Current = cmd
			if i > 0 {
				frame.Previous = cmds[i-1]
			}
			continue
		}
		frame.Next = cmd
		break
	}
	return frame, nil
}

// SearchOptions controls Search's matching behavior.
type SearchOptions struct {
	Regex           bool
	CaseSensitive   bool
	SearchCommand   bool
	SearchResponse  bool
	ContextCommands int // commands of context before/after a match
}

// SearchMatch is one hit plus surrounding context for SearchOptions.ContextCommands.
type SearchMatch struct {
	Command *SessionCommand
	Context []*SessionCommand
}

// Search finds commands/responses in sessionID matching term, literal
// or regex, per spec §4.8's search operation.
func Search(ctx context.Context, store Store, sessionID, term string, opts SearchOptions) ([]SearchMatch, error) {
	cmds, err := store.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !opts.SearchCommand && !opts.SearchResponse {
		opts.SearchCommand = true
	}

	matcher, err := buildMatcher(term, opts)
	if err != nil {
		return nil, err
	}

	var matches []SearchMatch
	for i, cmd := range cmds {
		hit := false
		if opts.SearchCommand && matcher(cmd.Command) {
			hit = true
		}
		if opts.SearchResponse && matcher(cmd.Response) {
			hit = true
		}
		if !hit {
			continue
		}
		matches = append(matches, SearchMatch{Command: cmd, Context: contextWindow(cmds, i, opts.ContextCommands)})
	}
	return matches, nil
}

func buildMatcher(term string, opts SearchOptions) (func(string) bool, error) {
	if opts.Regex {
		flags := ""
		if !opts.CaseSensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + term)
		if err != nil {
			return nil, fmt.Errorf("session: compiling search regex: %w", err)
		}
		return re.MatchString, nil
	}
	if opts.CaseSensitive {
		return func(s string) bool { return strings.Contains(s, term) }, nil
	}
	lowerTerm := strings.ToLower(term)
	return func(s string) bool { return strings.Contains(strings.ToLower(s), lowerTerm) }, nil
}

func contextWindow(cmds []*SessionCommand, idx, window int) []*SessionCommand {
	if window <= 0 {
		return nil
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + window + 1
	if end > len(cmds) {
		end = len(cmds)
	}
	return cmds[start:end]
}

// ExportFormat selects Export's output encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportHTML ExportFormat = "html"
	ExportText ExportFormat = "text"
)

// Export renders sessionID's full command log in format, per spec
// §4.8's export operation.
func Export(ctx context.Context, store Store, sessionID string, format ExportFormat) ([]byte, error) {
	sess, err := store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cmds, err := store.ListCommands(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		return json.MarshalIndent(struct {
			Session  *PrivilegedSession `json:"session"`
			Commands []*SessionCommand  `json:"commands"`
		}{sess, cmds}, "", "  ")
	case ExportCSV:
		return exportCSV(cmds)
	case ExportHTML:
		return exportHTML(sess, cmds), nil
	case ExportText:
		return exportText(cmds), nil
	default:
		return nil, fmt.Errorf("session: unsupported export format %q", format)
	}
}

func exportCSV(cmds []*SessionCommand) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"sequence_number", "executed_at", "command", "response", "exit_code", "suspicious"}); err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		if err := w.Write([]string{
			strconv.FormatInt(cmd.SequenceNumber, 10), cmd.ExecutedAt.Format(time.RFC3339Nano),
			cmd.Command, cmd.Response, strconv.Itoa(cmd.ExitCode), strconv.FormatBool(cmd.Suspicious),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportText(cmds []*SessionCommand) []byte {
	var buf bytes.Buffer
	for _, cmd := range cmds {
		fmt.Fprintf(&buf, "[%d] %s $ %s\n", cmd.SequenceNumber, cmd.ExecutedAt.Format(time.RFC3339), cmd.Command)
		if cmd.Response != "" {
			fmt.Fprintf(&buf, "%s\n", cmd.Response)
		}
	}
	return buf.Bytes()
}

func exportHTML(sess *PrivilegedSession, cmds []*SessionCommand) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<html><head><title>session %s</title></head><body><pre>\n", sess.ID)
	for _, cmd := range cmds {
		class := ""
		if cmd.Suspicious {
			class = " class=\"suspicious\""
		}
		fmt.Fprintf(&buf, "<div%s>[%d] %s $ %s</div>\n", class, cmd.SequenceNumber, cmd.ExecutedAt.Format(time.RFC3339), cmd.Command)
	}
	fmt.Fprint(&buf, "</pre></body></html>\n")
	return buf.Bytes()
}
