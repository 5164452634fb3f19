package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts the highlights of the competition to a Discord channel webhook.
type DiscordSink struct {
	exec      webhookExecutor
	webhookID string
	token     string

	mu        sync.Mutex
	solvers   map[int]map[string]bool
	completed int
}

// ParseWebhookURL extracts the id and token of a Discord webhook URL,
// https://discord.com/api/webhooks/{id}/{token}.
func ParseWebhookURL(rawURL string) (id, token string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%q is not a Discord webhook URL", rawURL)
}

func NewDiscordSink(webhookURL string) (*DiscordSink, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("could not create discord session: %w", err)
	}
	return newDiscordSink(session, id, token), nil
}

func newDiscordSink(exec webhookExecutor, id, token string) *DiscordSink {
	return &DiscordSink{
		exec:      exec,
		webhookID: id,
		token:     token,
		solvers:   make(map[int]map[string]bool),
	}
}

func (s *DiscordSink) Name() string { return "discord" }

func (s *DiscordSink) Handle(ctx context.Context, ev Event) error {
	content := s.message(ev)
	if content == "" {
		return nil
	}
	_, err := s.exec.WebhookExecute(s.webhookID, s.token, false, &discordgo.WebhookParams{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

// message renders ev, or returns "" for events not worth a post.
func (s *DiscordSink) message(ev Event) string {
	switch ev := ev.(type) {
	case Announcement:
		return fmt.Sprintf("📢 **%s**: %s", ev.Announcer, ev.Announcement)
	case Pause:
		return fmt.Sprintf("⏸️ The competition was paused by %s", ev.PausedBy)
	case Unpause:
		return fmt.Sprintf("▶️ The competition was resumed by %s", ev.UnpausedBy)
	case Complete:
		s.mu.Lock()
		s.completed++
		place := s.completed
		s.mu.Unlock()
		return fmt.Sprintf("🏁 **%s** solved every problem, %s team to do so!", ev.Name, humanize.Ordinal(place))
	case SubmissionEvaluation:
		if ev.Failed > 0 || ev.Passed == 0 {
			return ""
		}
		s.mu.Lock()
		solvers, ok := s.solvers[ev.QuestionIdx]
		if !ok {
			solvers = make(map[string]bool)
			s.solvers[ev.QuestionIdx] = solvers
		}
		if solvers[ev.Name] {
			s.mu.Unlock()
			return ""
		}
		solvers[ev.Name] = true
		place := len(solvers)
		s.mu.Unlock()
		if place > 3 {
			return ""
		}
		return fmt.Sprintf("🎉 **%s** is the %s team to solve *%s* (%s points)", ev.Name, humanize.Ordinal(place), ev.QuestionText, humanize.Ftoa(ev.Points))
	default:
		return ""
	}
}
