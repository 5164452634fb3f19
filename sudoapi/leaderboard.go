package sudoapi

import (
	"context"

	"github.com/KiloProjects/arena"
	"golang.org/x/sync/errgroup"
)

type LeaderboardEntry struct {
	User             *arena.User           `json:"user"`
	Score            float64               `json:"score"`
	SubmissionStates []arena.QuestionState `json:"submissionStates"`
}

// ProblemStates returns the per-problem state of a team.
func (s *BaseAPI) ProblemStates(ctx context.Context, userID string) ([]arena.QuestionState, error) {
	latest, err := s.subs.GetLatestSubmissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	runs, err := s.subs.CountTests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return arena.QuestionStates(len(s.packet.Problems), latest, runs), nil
}

func (s *BaseAPI) Leaderboard(ctx context.Context) ([]*LeaderboardEntry, error) {
	users, err := s.users.UsersWithRole(ctx, arena.RoleCompetitor)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get teams")
	}
	entries := make([]*LeaderboardEntry, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreFanout)
	for i, user := range users {
		g.Go(func() error {
			score, err := s.subs.GetUserScore(gctx, user.ID)
			if err != nil {
				return err
			}
			states, err := s.ProblemStates(gctx, user.ID)
			if err != nil {
				return err
			}
			entries[i] = &LeaderboardEntry{User: user, Score: score, SubmissionStates: states}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, arena.WrapError(err, "Couldn't build leaderboard")
	}
	return entries, nil
}
