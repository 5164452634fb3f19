package sudoapi

import (
	"context"

	"github.com/KiloProjects/arena"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// TestingState returns the state and the remaining attempts of every problem for a team.
func (s *BaseAPI) TestingState(ctx context.Context, userID string) ([]arena.ProblemState, error) {
	states, err := s.ProblemStates(ctx, userID)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get problem states")
	}
	attempts, err := s.subs.GetAttempts(ctx, userID)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't count attempts")
	}
	used := make([]int, len(states))
	for _, cnt := range attempts {
		if cnt.ProblemIndex >= 0 && cnt.ProblemIndex < len(used) {
			used[cnt.ProblemIndex] = cnt.Count
		}
	}
	out := make([]arena.ProblemState, len(states))
	for i, state := range states {
		out[i] = arena.ProblemState{State: state}
		if s.maxSubmissions > 0 {
			left := max(s.maxSubmissions-used[i], 0)
			out[i].RemainingAttempts = &left
		}
	}
	return out, nil
}

// Submissions lists the submission history visible to the user.
// Competitors only ever see their own rows.
func (s *BaseAPI) Submissions(ctx context.Context, user *arena.User, filter arena.SubmissionFilter) ([]*arena.SubmissionHistory, error) {
	if !user.IsHost() || filter.UserID == nil {
		filter.UserID = &user.ID
	}
	filter.ID = nil
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	filter.Limit = min(filter.Limit, maxHistoryLimit)
	filter.Offset = max(filter.Offset, 0)

	subs, err := s.subs.GetSubmissions(ctx, filter)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get submissions")
	}
	if subs == nil {
		subs = []*arena.SubmissionHistory{}
	}
	return subs, nil
}

type FullSubmission struct {
	*arena.SubmissionHistory
	Tests []*arena.TestHistory `json:"tests"`
}

// Submission returns a submission along with its test rows.
// Only its owner and the hosts may see it.
func (s *BaseAPI) Submission(ctx context.Context, user *arena.User, id string) (*FullSubmission, error) {
	sub, err := s.subs.GetSubmission(ctx, id)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get submission")
	}
	if sub == nil || (sub.Submitter != user.ID && !user.IsHost()) {
		return nil, arena.Statusf(404, "Submission not found")
	}
	tests, err := s.subs.GetTestHistory(ctx, sub.ID)
	if err != nil {
		return nil, arena.WrapError(err, "Couldn't get test history")
	}
	if tests == nil {
		tests = []*arena.TestHistory{}
	}
	return &FullSubmission{SubmissionHistory: sub, Tests: tests}, nil
}
