package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// console prints session events as plain text. In raw terminal mode lines
// must end in "\r\n".
type console struct {
	mu  sync.Mutex
	w   io.Writer
	eol string
}

func newConsole(w io.Writer, raw bool) *console {
	eol := "\n"
	if raw {
		eol = "\r\n"
	}
	return &console{w: w, eol: eol}
}

func (c *console) printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, strings.ReplaceAll(s, "\n", c.eol))
}

func (c *console) OnTranscriptAppended(e transcript.Entry) {
	speaker := e.SpeakerID
	if speaker == "" {
		speaker = transcript.UnknownSpeaker
	}
	c.printf("[%s] %s: %s\n", e.Timestamp.Format(meeting.ClockLayout), speaker, e.Text)
}

func (c *console) OnSummaryUpdated(v analysis.Value) {
	c.printf("\n== Summary ==\n%s\n\n", v)
}

func (c *console) OnAnalysisUpdated(name string, v analysis.Value) {
	c.printf("\n== %s ==\n%s\n\n", sectionTitle(name), v)
}

func (c *console) OnRecordingStateChanged(state string) {
	c.printf("-- %s --\n", state)
}

func (c *console) OnFinalStats(duration string, totalTokens int64) {
	c.printf("\nMeeting duration: %s\nTotal tokens used: %d\n", duration, totalTokens)
}

func (c *console) OnNotice(level slog.Level, message string) {
	c.printf("%s: %s\n", level, message)
}

func sectionTitle(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
