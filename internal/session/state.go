// Package session holds the client-side view of one story conversation: the
// message log, the accumulated story profile and the current story.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"storybook-agent/internal/domain"
	"storybook-agent/internal/story"
)

type Mode string

const (
	ModeChat  Mode = "chat"
	ModeStory Mode = "story"
)

const (
	Greeting = "Hello! I'm so excited to help you create a magical story for your child! To get started, could you tell me your child's name and age?"
	Apology  = "I'm sorry, I'm having trouble connecting right now. Could you please try again?"
	FollowUp = "That was a wonderful story! Would you like to create another story or change this one? I'm here to help!"

	fallbackReply = "Here's your story!"
)

type State struct {
	Handle   string
	Messages []domain.ChatMessage
	Profile  domain.StoryProfile
	Story    string
	Mode     Mode

	now   func() time.Time
	newID func() string
}

// New returns a state for handle seeded with the greeting.
func New(handle string) *State {
	s := &State{
		Handle:  handle,
		Profile: domain.StoryProfile{},
		Mode:    ModeChat,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	s.appendMessage(domain.RoleAssistant, Greeting)
	return s
}

// AppendUser records the user's text and returns the new message. Blank text
// is ignored.
func (s *State) AppendUser(text string) (domain.ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	return s.appendMessage(domain.RoleUser, text), true
}

// ApplyReply appends the assistant's reply, merges any profile it carried and
// switches to the story view once a story is complete.
func (s *State) ApplyReply(r domain.TurnResult) {
	text := r.Message
	if strings.TrimSpace(text) == "" {
		text = r.Story
	}
	if strings.TrimSpace(text) == "" {
		text = fallbackReply
	}
	s.appendMessage(domain.RoleAssistant, text)

	if r.StoryProfile != nil {
		s.Profile = s.Profile.Merge(r.StoryProfile)
	}

	switch {
	case r.Story != "":
		s.showStory(r.Story)
	case r.IsComplete:
		s.showStory(s.Profile.StoryText())
	case story.LooksLikeStory(r.Message):
		s.showStory(story.FromOnceUponATime(r.Message))
	}
}

// ApplyHistory replaces the log with the server's history. The newest story
// and the newest profile found in it are restored.
func (s *State) ApplyHistory(history []domain.HistoryMessage) {
	msgs := make([]domain.ChatMessage, 0, len(history))
	var (
		foundStory   string
		foundProfile domain.StoryProfile
	)
	for _, h := range history {
		msgs = append(msgs, h.ChatMessage)
		if h.Story != "" {
			foundStory = h.Story
		}
		if len(h.StoryProfile) > 0 {
			foundProfile = h.StoryProfile
		}
	}
	if len(msgs) == 0 {
		return
	}
	s.Messages = msgs
	if foundProfile != nil {
		s.Profile = s.Profile.Merge(foundProfile)
	}
	if foundStory != "" {
		s.showStory(foundStory)
	}
}

// ApplyFailure appends the apology bubble shown when a turn fails.
func (s *State) ApplyFailure() {
	s.appendMessage(domain.RoleAssistant, Apology)
}

// NewStory leaves the story view and invites another round.
func (s *State) NewStory() {
	s.Story = ""
	s.Mode = ModeChat
	s.appendMessage(domain.RoleAssistant, FollowUp)
}

// Title is the heading of the finished-story view.
func (s *State) Title() string {
	return TitleFor(s.Profile)
}

// TitleFor names a story after the child it was written for.
func TitleFor(p domain.StoryProfile) string {
	if name := strings.TrimSpace(p.ChildName()); name != "" {
		return name + "'s Adventure"
	}
	return "Your Story"
}

func (s *State) showStory(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.Story = text
	s.Mode = ModeStory
}

func (s *State) appendMessage(role domain.Role, text string) domain.ChatMessage {
	m := domain.ChatMessage{
		ID:        s.newID(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	s.Messages = append(s.Messages, m)
	return m
}
