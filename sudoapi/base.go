package sudoapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/eval"
	"github.com/KiloProjects/arena/grader"
	"github.com/KiloProjects/arena/internal/clock"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/teams"
	"github.com/KiloProjects/arena/internal/ws"
	"github.com/Yiling-J/theine-go"
)

// sessionCacheTTL caps how long a session lookup is cached. Entries never outlive the session.
const sessionCacheTTL = 20 * time.Second

var errSessionExpired = arena.Statusf(401, "Session expired")

type UserStore interface {
	UserByID(ctx context.Context, id string) (*arena.User, error)
	UsersWithRole(ctx context.Context, role arena.Role) ([]*arena.User, error)
	CreateUser(ctx context.Context, u *arena.User) error
	UpsertUser(ctx context.Context, u *arena.User) (*arena.User, error)
	UpdateUser(ctx context.Context, id string, upd arena.UserUpdate) error
	DeleteUser(ctx context.Context, id string) error
	VerifyLogin(ctx context.Context, username, password string) (*arena.User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, userID string, lifetime time.Duration) (*arena.Session, error)
	// SessionUser returns the user of a live session and when the session expires
	SessionUser(ctx context.Context, sessionID string) (*arena.User, time.Time, error)
	RemoveSession(ctx context.Context, sessionID string) error
	RemoveUserSessions(ctx context.Context, userID string) ([]string, error)
}

type SubmissionStore interface {
	GetLatestSubmissions(ctx context.Context, userID string) ([]*arena.SubmissionHistory, error)
	GetUserScore(ctx context.Context, userID string) (float64, error)
	CountTests(ctx context.Context, userID string) ([]arena.ProblemCount, error)
	GetAttempts(ctx context.Context, userID string) ([]arena.ProblemCount, error)
	GetSubmissions(ctx context.Context, filter arena.SubmissionFilter) ([]*arena.SubmissionHistory, error)
	GetSubmission(ctx context.Context, id string) (*arena.SubmissionHistory, error)
	GetTestHistory(ctx context.Context, submissionID string) ([]*arena.TestHistory, error)
}

type AnnouncementStore interface {
	CreateAnnouncement(ctx context.Context, sender, message string) (*arena.Announcement, error)
	Announcements(ctx context.Context) ([]*arena.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id string) error
}

// Grader runs tests on behalf of the HTTP surface and handles socket messages.
type Grader interface {
	Validate(req grader.Request) error
	RunTests(ctx context.Context, kind ws.Kind, user *arena.User, req grader.Request, progress func(grader.Report)) (*grader.Report, error)
	HandleMessage(ctx context.Context, kind ws.Kind, user *arena.User, out grader.Sender, msg ws.Incoming)
}

type Dispatcher interface {
	Dispatch(ev events.Event) error
}

// Deps are the services the BaseAPI is built on.
type Deps struct {
	Users         UserStore
	Sessions      SessionStore
	Submissions   SubmissionStore
	Announcements AnnouncementStore

	Grader     Grader
	Dispatcher Dispatcher

	Conns *ws.Registry
	Teams *teams.Registry
	Clock *clock.Clock

	Packet    *arena.Packet
	Languages *eval.Languages

	TimeLimit      time.Duration
	MaxSubmissions int
	// DefaultPoints is shown for problems without explicit points
	DefaultPoints float64
}

type BaseAPI struct {
	users    UserStore
	sessions SessionStore
	subs     SubmissionStore
	anns     AnnouncementStore

	grader     Grader
	dispatcher Dispatcher

	conns *ws.Registry
	teams *teams.Registry
	clock *clock.Clock

	packet *arena.Packet
	langs  *eval.Languages

	timeLimit      time.Duration
	maxSubmissions int
	defaultPoints  float64

	sessionUserCache *theine.LoadingCache[string, *arena.User]

	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, logger *slog.Logger) (*BaseAPI, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := &BaseAPI{
		users:    deps.Users,
		sessions: deps.Sessions,
		subs:     deps.Submissions,
		anns:     deps.Announcements,

		grader:     deps.Grader,
		dispatcher: deps.Dispatcher,

		conns: deps.Conns,
		teams: deps.Teams,
		clock: deps.Clock,

		packet: deps.Packet,
		langs:  deps.Languages,

		timeLimit:      deps.TimeLimit,
		maxSubmissions: deps.MaxSubmissions,
		defaultPoints:  deps.DefaultPoints,

		logger: logger,
		now:    time.Now,
	}
	sUserCache, err := theine.NewBuilder[string, *arena.User](500).BuildWithLoader(func(ctx context.Context, sid string) (theine.Loaded[*arena.User], error) {
		user, expiresAt, err := base.sessionUser(ctx, sid)
		if err != nil {
			return theine.Loaded[*arena.User]{}, err
		}
		ttl := sessionCacheTTL
		if user != nil {
			ttl = min(ttl, expiresAt.Sub(base.now()))
			if ttl <= 0 {
				return theine.Loaded[*arena.User]{}, errSessionExpired
			}
		}
		return theine.Loaded[*arena.User]{
			Value: user,
			Cost:  1,
			TTL:   ttl,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not build session user cache: %w", err)
	}
	base.sessionUserCache = sUserCache
	return base, nil
}

func (s *BaseAPI) Close() {
	s.sessionUserCache.Close()
}

func (s *BaseAPI) Packet() *arena.Packet {
	return s.packet
}

func (s *BaseAPI) Grader() Grader {
	return s.grader
}

func (s *BaseAPI) Conns() *ws.Registry {
	return s.conns
}

func (s *BaseAPI) dispatch(ctx context.Context, ev events.Event) {
	if err := s.dispatcher.Dispatch(ev); err != nil {
		s.logger.WarnContext(ctx, "Couldn't dispatch event", slog.String("event", ev.Kind()), slog.Any("err", err))
	}
}
