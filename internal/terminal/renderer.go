// Package terminal prints a chat session to a terminal.
package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/omochice/socketio-chat/internal/chat"
)

const (
	UserPrefix     = "you> "
	BotPrefix      = "bot> "
	ThinkingText   = "Bot is Thinking..."
	noticeSentinel = "⚠️"

	// eraseLine moves the cursor to the previous line and clears it.
	eraseLine = "\x1b[1A\x1b[2K"
)

var (
	userStyle     = color.New(color.FgGreen, color.OpBold)
	botStyle      = color.New(color.FgCyan)
	noticeStyle   = color.New(color.FgYellow)
	thinkingStyle = color.New(color.FgGray, color.OpItalic)
)

// Renderer writes entries as lines of text. It is safe for concurrent use.
//
// On an ANSI terminal the thinking indicator is kept as the last line and
// erased once it turns off. Plain output cannot take lines back, so there
// the indicator stays in the transcript above the reply it announced.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool

	thinking      bool
	indicatorLast bool
}

// NewRenderer creates a Renderer writing to out. colours selects ANSI
// output: colours and an erasable thinking indicator.
func NewRenderer(out io.Writer, colours bool) *Renderer {
	return &Renderer{out: out, colours: colours}
}

// EntryAppended prints one conversation entry.
func (r *Renderer) EntryAppended(entry chat.Entry) {
	var line string
	switch {
	case isNotice(entry):
		line = r.paint(noticeStyle, entry.Text)
	case entry.IsUser:
		line = r.paint(userStyle, UserPrefix) + entry.Text
	default:
		line = r.paint(botStyle, BotPrefix+entry.Text)
	}
	r.println(line)
}

// ThinkingChanged shows the thinking indicator, or erases it where the
// terminal allows.
func (r *Renderer) ThinkingChanged(thinking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.thinking == thinking {
		return
	}
	r.thinking = thinking
	if thinking {
		r.writeIndicator()
		return
	}
	r.eraseIndicator()
}

// Println prints a line that is not part of the conversation.
func (r *Renderer) Println(text string) {
	r.println(text)
}

func (r *Renderer) paint(style color.Style, text string) string {
	if !r.colours {
		return text
	}
	return style.Render(text)
}

// println prints line above the indicator while it is shown.
func (r *Renderer) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	redraw := r.indicatorLast
	r.eraseIndicator()
	_, _ = fmt.Fprintln(r.out, line)
	if redraw {
		r.writeIndicator()
	}
}

func (r *Renderer) writeIndicator() {
	_, _ = fmt.Fprintln(r.out, r.paint(thinkingStyle, ThinkingText))
	r.indicatorLast = r.colours
}

func (r *Renderer) eraseIndicator() {
	if r.indicatorLast {
		_, _ = io.WriteString(r.out, eraseLine)
		r.indicatorLast = false
	}
}
