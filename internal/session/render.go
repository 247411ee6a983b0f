package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"storybook-agent/internal/domain"
)

var (
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	storyStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("99")).Padding(1, 2)
	hintStyle      = lipgloss.NewStyle().Faint(true)
)

// Render writes the chat log, or the finished story when in story mode.
func (s *State) Render(w io.Writer, width int) error {
	if s.Mode == ModeStory && s.Story != "" {
		return s.renderStory(w, width)
	}
	return s.renderChat(w, width)
}

// RenderLast writes only the newest message.
func (s *State) RenderLast(w io.Writer, width int) error {
	if len(s.Messages) == 0 {
		return nil
	}
	_, err := io.WriteString(w, bubble(s.Messages[len(s.Messages)-1], width)+"\n")
	return err
}

func (s *State) renderChat(w io.Writer, width int) error {
	var b strings.Builder
	for _, m := range s.Messages {
		b.WriteString(bubble(m, width))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (s *State) renderStory(w io.Writer, width int) error {
	body := storyStyle
	if width > 4 {
		body = body.Width(width - 4)
	}
	out := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(s.Title()),
		body.Render(s.Story),
		hintStyle.Render("Type /new to create another story."),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}

func bubble(m domain.ChatMessage, width int) string {
	label := assistantLabel.Render("Storyteller:")
	if m.Role == domain.RoleUser {
		label = userLabel.Render("You:")
	}
	text := m.Text
	if width > 0 {
		text = lipgloss.NewStyle().Width(width).Render(text)
	}
	return label + "\n" + text + "\n"
}
