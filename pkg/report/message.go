// Package report turns a Huginn status document into the chat message shown by the bot.
package report

import "strings"

// Span is a run of text, optionally rendered bold.
type Span struct {
	Text   string
	Strong bool
}

func plain(s string) Span  { return Span{Text: s} }
func strong(s string) Span { return Span{Text: s, Strong: true} }

// Line is one line of a message. An empty Line is a blank separator.
type Line []Span

// Message is an ordered list of lines, serialized once when sent.
type Message struct {
	Lines []Line
}

// Markdown serializes m using Discord markdown (**bold**). Lines are joined
// with "\n"; trailing blank lines are dropped.
func (m Message) Markdown() string {
	return m.render("**")
}

// PlainText serializes m without any emphasis markers.
func (m Message) PlainText() string {
	return m.render("")
}

func (m Message) render(mark string) string {
	out := make([]string, 0, len(m.Lines))
	for _, l := range m.Lines {
		var b strings.Builder
		for _, s := range l {
			if s.Strong {
				b.WriteString(mark)
				b.WriteString(s.Text)
				b.WriteString(mark)
				continue
			}
			b.WriteString(s.Text)
		}
		out = append(out, b.String())
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
