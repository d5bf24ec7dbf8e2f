// Package console writes accepted event records to a terminal or pipe, one
// line per record, either as styled text or as JSON.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/tripwire/fswatch/internal/event"
)

// ANSI palette indices.
const (
	colorWhite   = "15"
	colorCyan    = "14"
	colorGreen   = "10"
	colorRed     = "9"
	colorYellow  = "11"
	colorMagenta = "13"
)

// kindColors assigns each kind its line color.
var kindColors = map[event.Kind]string{
	event.Accessed:        colorWhite,
	event.Modified:        colorYellow,
	event.MetadataChanged: colorCyan,
	event.ClosedWrite:     colorWhite,
	event.ClosedNoWrite:   colorWhite,
	event.Opened:          colorWhite,
	event.MovedFrom:       colorYellow,
	event.MovedTo:         colorYellow,
	event.Created:         colorGreen,
	event.Deleted:         colorRed,
	event.SelfDeleted:     colorRed,
	event.SelfMoved:       colorYellow,
}

// Sink writes records to w. It satisfies watcher.Sink and is safe for
// concurrent use.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	json   bool
	color  bool
	styles map[event.Kind]lipgloss.Style
	title  lipgloss.Style
	config lipgloss.Style
}

// Option configures a Sink.
type Option func(*Sink)

// WithJSON switches output to one JSON object per line.
func WithJSON(enabled bool) Option {
	return func(s *Sink) { s.json = enabled }
}

// WithColor enables ANSI styling in text mode.
func WithColor(enabled bool) Option {
	return func(s *Sink) { s.color = enabled }
}

// New returns a Sink writing to w. Text output is unstyled unless WithColor
// is given.
func New(w io.Writer, opts ...Option) *Sink {
	s := &Sink{w: w}
	for _, opt := range opts {
		opt(s)
	}

	r := lipgloss.NewRenderer(w)
	if s.color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	s.styles = make(map[event.Kind]lipgloss.Style, len(kindColors))
	for k, c := range kindColors {
		s.styles[k] = r.NewStyle().Foreground(lipgloss.Color(c))
	}
	s.title = r.NewStyle().Bold(s.color).Foreground(lipgloss.Color(colorRed))
	s.config = r.NewStyle().Foreground(lipgloss.Color(colorMagenta))
	return s
}

// ColorEnabled reports whether styled output suits w: it must be a terminal
// and NO_COLOR must be unset.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// jsonRecord is the wire shape of a record in JSON mode.
type jsonRecord struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Raw     string    `json:"raw"`
	Target  string    `json:"target"`
	Path    string    `json:"path"`
	OldPath string    `json:"old_path,omitempty"`
	Cookie  uint32    `json:"cookie,omitempty"`
	Message string    `json:"message"`
}

// Emit writes one line for rec. line is the plain rendering of rec.
func (s *Sink) Emit(rec event.Record, line string) error {
	var out []byte
	if s.json {
		b, err := json.Marshal(jsonRecord{
			Time:    rec.Timestamp,
			Kind:    rec.Kind.String(),
			Raw:     rec.Kind.RawName(),
			Target:  rec.Target.String(),
			Path:    rec.Path,
			OldPath: rec.OldPath,
			Cookie:  rec.Cookie,
			Message: line,
		})
		if err != nil {
			return fmt.Errorf("console: encode %s: %w", rec.Kind, err)
		}
		out = append(b, '\n')
	} else {
		if st, ok := s.styles[rec.Kind]; ok {
			line = st.Render(line)
		}
		out = []byte(line + "\n")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// Summary is the configuration echoed by Banner.
type Summary struct {
	Directory string
	Recursive bool
	Events    []string
}

// Banner prints the startup banner and configuration block. It prints
// nothing in JSON mode, where stdout carries records only.
func (s *Sink) Banner(sum Summary) error {
	if s.json {
		return nil
	}

	rule := strings.Repeat("=", 61)
	var b strings.Builder
	b.WriteString(s.title.Render(rule) + "\n")
	b.WriteString(s.title.Render(fmt.Sprintf("%35s", "FSWATCH")) + "\n")
	b.WriteString(s.title.Render(rule) + "\n\n")

	b.WriteString(s.config.Render("Configuration:") + "\n")
	b.WriteString(s.config.Render("|--> Directory watched : "+sum.Directory) + "\n")
	b.WriteString(s.config.Render(fmt.Sprintf("|--> Recursive watching: %t", sum.Recursive)) + "\n")
	b.WriteString(s.config.Render("|--> Events monitored: ") + "\n")
	for _, e := range sum.Events {
		b.WriteString(s.config.Render("    * "+e) + "\n")
	}
	b.WriteString("\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, b.String())
	return err
}

// Stopped prints the interrupt confirmation. Like Banner it is silent in
// JSON mode.
func (s *Sink) Stopped() error {
	if s.json {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, "Stopped monitoring\n")
	return err
}
