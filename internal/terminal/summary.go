package terminal

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/omochice/socketio-chat/internal/chat"
	"github.com/samber/lo"
)

// Summary counts the entries of a finished conversation.
type Summary struct {
	Sent     int
	Received int
	Notices  int
}

// Summarize counts entries by origin. Notices are not counted as received.
func Summarize(entries []chat.Entry) Summary {
	notices := lo.CountBy(entries, isNotice)
	sent := lo.CountBy(entries, func(e chat.Entry) bool { return e.IsUser })
	return Summary{
		Sent:     sent,
		Received: len(entries) - sent - notices,
		Notices:  notices,
	}
}

// WriteSummary prints s as a small table.
func WriteSummary(w io.Writer, s Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Sent", "Received", "Notices"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.Append([]string{strconv.Itoa(s.Sent), strconv.Itoa(s.Received), strconv.Itoa(s.Notices)})
	table.Render()
}

func isNotice(e chat.Entry) bool {
	return !e.IsUser && strings.HasPrefix(e.Text, noticeSentinel)
}
