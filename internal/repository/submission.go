package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KiloProjects/arena"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const scorePrecision = 4

var errScoreWithoutSuccess = errors.New("a nonzero score requires a successful submission")

// SubmissionRepository stores the submission history, the per-test results and test runs.
type SubmissionRepository struct {
	conn *pgxpool.Pool
}

func NewSubmissionRepository(conn *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{conn: conn}
}

// Pool is the default Querier, used outside of transactions.
func (s *SubmissionRepository) Pool() Querier {
	return s.conn
}

// Tx runs fn inside a single transaction.
func (s *SubmissionRepository) Tx(ctx context.Context, fn func(q Querier) error) error {
	return Tx(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

type dbSubmission struct {
	ID           string    `db:"id"`
	Submitter    string    `db:"submitter"`
	Time         time.Time `db:"time"`
	Code         string    `db:"code"`
	ProblemIndex int       `db:"question_index"`
	Language     string    `db:"language"`

	CompileResult     int     `db:"compile_result"`
	CompileStdout     *string `db:"compile_stdout"`
	CompileStderr     *string `db:"compile_stderr"`
	CompileExitStatus *int    `db:"compile_exit_status"`

	State     int             `db:"state"`
	Score     decimal.Decimal `db:"score"`
	Success   bool            `db:"success"`
	TimeTaken int64           `db:"time_taken"`
}

const submissionColumns = `id, submitter, time, code, question_index, language,
	compile_result, compile_stdout, compile_stderr, compile_exit_status,
	state, score, success, time_taken`

func (sub *dbSubmission) full() (*arena.SubmissionHistory, error) {
	compileRes, err := arena.CompileResultFromInt(sub.CompileResult)
	if err != nil {
		return nil, fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	state, err := arena.SubmissionStateFromInt(sub.State)
	if err != nil {
		return nil, fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	return &arena.SubmissionHistory{
		ID:           sub.ID,
		Submitter:    sub.Submitter,
		Time:         sub.Time,
		Code:         sub.Code,
		ProblemIndex: sub.ProblemIndex,
		Language:     sub.Language,
		Compile: arena.CompileOutput{
			Result:     compileRes,
			Stdout:     sub.CompileStdout,
			Stderr:     sub.CompileStderr,
			ExitStatus: sub.CompileExitStatus,
		},
		State:     state,
		Score:     sub.Score.InexactFloat64(),
		Success:   sub.Success,
		TimeTaken: time.Duration(sub.TimeTaken),
	}, nil
}

func collectSubmissions(rows pgx.Rows) ([]*arena.SubmissionHistory, error) {
	subs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[dbSubmission])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []*arena.SubmissionHistory{}, nil
		}
		return nil, err
	}
	full := make([]*arena.SubmissionHistory, 0, len(subs))
	for _, sub := range subs {
		fs, err := sub.full()
		if err != nil {
			return nil, err
		}
		full = append(full, fs)
	}
	return full, nil
}

func roundScore(score float64) decimal.Decimal {
	return decimal.NewFromFloat(score).Round(scorePrecision)
}

func insertSubmission(ctx context.Context, q Querier, sub arena.NewSubmission, state arena.SubmissionState, score float64, success bool, elapsed time.Duration) (*arena.SubmissionHistory, error) {
	if score != 0 && (!success || state != arena.StateFinished) {
		return nil, errScoreWithoutSuccess
	}
	rows, _ := q.Query(ctx, `
		INSERT INTO submission_history (
			id, submitter, time, code, question_index, language,
			compile_result, compile_stdout, compile_stderr, compile_exit_status,
			state, score, success, time_taken
		) VALUES ($1, $2, COALESCE($3, clock_timestamp()), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+submissionColumns,
		arena.NewID(), sub.Submitter, nullTime(sub.Time), sub.Code, sub.ProblemIndex, sub.Language,
		int(sub.Compile.Result), sub.Compile.Stdout, sub.Compile.Stderr, sub.Compile.ExitStatus,
		int(state), roundScore(score), success, int64(elapsed),
	)
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, fmt.Errorf("couldn't insert submission: %w", err)
	}
	if len(subs) == 0 {
		return nil, errors.New("insert returned no submission")
	}
	return subs[0], nil
}

// PartialSubmissionHistory is a submission row in the Started state.
// Exactly one of Finish, Fail and Cancel may succeed.
type PartialSubmissionHistory struct {
	ID string

	mu   sync.Mutex
	done bool
}

// CreateSubmissionHistory inserts a Started row.
func (s *SubmissionRepository) CreateSubmissionHistory(ctx context.Context, q Querier, sub arena.NewSubmission) (*PartialSubmissionHistory, error) {
	full, err := insertSubmission(ctx, q, sub, arena.StateStarted, 0, false, 0)
	if err != nil {
		return nil, err
	}
	return &PartialSubmissionHistory{ID: full.ID}, nil
}

func (p *PartialSubmissionHistory) transition(ctx context.Context, q Querier, upd sq.UpdateBuilder) (*arena.SubmissionHistory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil, arena.ErrAlreadyTerminal
	}

	query, args, err := upd.
		Where(sq.Eq{"id": p.ID, "state": int(arena.StateStarted)}).
		Suffix("RETURNING " + submissionColumns).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := q.Query(ctx, query, args...)
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, fmt.Errorf("couldn't update submission: %w", err)
	}
	p.done = true
	if len(subs) == 0 {
		return nil, arena.ErrAlreadyTerminal
	}
	return subs[0], nil
}

// Finish moves the submission to Finished.
func (p *PartialSubmissionHistory) Finish(ctx context.Context, q Querier, score float64, success bool, elapsed time.Duration) (*arena.SubmissionHistory, error) {
	if score != 0 && !success {
		return nil, errScoreWithoutSuccess
	}
	return p.transition(ctx, q, sq.Update("submission_history").
		Set("state", int(arena.StateFinished)).
		Set("score", roundScore(score)).
		Set("success", success).
		Set("time_taken", int64(elapsed)))
}

// Fail moves the submission to Failed, keeping a zero score.
func (p *PartialSubmissionHistory) Fail(ctx context.Context, q Querier) (*arena.SubmissionHistory, error) {
	return p.transition(ctx, q, sq.Update("submission_history").Set("state", int(arena.StateFailed)))
}

// Cancel moves the submission to Cancelled. Cancelled submissions don't count as attempts.
func (p *PartialSubmissionHistory) Cancel(ctx context.Context, q Querier) (*arena.SubmissionHistory, error) {
	return p.transition(ctx, q, sq.Update("submission_history").Set("state", int(arena.StateCancelled)))
}

// InsertFinishedSubmission writes an already finished submission.
func (s *SubmissionRepository) InsertFinishedSubmission(ctx context.Context, q Querier, sub arena.NewSubmission, score float64, success bool, elapsed time.Duration) (*arena.SubmissionHistory, error) {
	return insertSubmission(ctx, q, sub, arena.StateFinished, score, success, elapsed)
}

// InsertFailedSubmission records a submission that never got to run its tests.
func (s *SubmissionRepository) InsertFailedSubmission(ctx context.Context, q Querier, sub arena.NewSubmission, elapsed time.Duration) (*arena.SubmissionHistory, error) {
	return insertSubmission(ctx, q, sub, arena.StateFailed, 0, false, elapsed)
}

func (s *SubmissionRepository) CreateSubmissionTestHistory(ctx context.Context, q Querier, submissionID string, test arena.TestHistory) error {
	_, err := q.Exec(ctx,
		"INSERT INTO test_results (submission, test_index, result, stdout, stderr, exit_status, time_taken) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		submissionID, test.TestIndex, int(test.Result), test.Stdout, test.Stderr, test.ExitStatus, int64(test.TimeTaken),
	)
	if isUniqueViolation(err) {
		return arena.Statusf(409, "Test %d was already recorded for submission %s", test.TestIndex, submissionID)
	}
	return err
}

// CountPreviousSubmissions counts the attempts of a user on a problem. Cancelled submissions are not attempts.
func (s *SubmissionRepository) CountPreviousSubmissions(ctx context.Context, userID string, problem int) (int, error) {
	var cnt int
	err := s.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM submission_history WHERE submitter = $1 AND question_index = $2 AND state <> $3",
		userID, problem, int(arena.StateCancelled),
	).Scan(&cnt)
	return cnt, err
}

// CountOtherSubmissions counts the other users that solved the problem strictly before the given time.
func (s *SubmissionRepository) CountOtherSubmissions(ctx context.Context, q Querier, userID string, problem int, before time.Time) (int, error) {
	var cnt int
	err := q.QueryRow(ctx,
		"SELECT COUNT(DISTINCT submitter) FROM submission_history WHERE question_index = $1 AND success AND submitter <> $2 AND time < $3",
		problem, userID, before,
	).Scan(&cnt)
	return cnt, err
}

const latestSubmissionsQuery = `SELECT DISTINCT ON (question_index) ` + submissionColumns + `
	FROM submission_history
	WHERE submitter = $1 AND state IN ($2, $3)
	ORDER BY question_index, time DESC, id DESC`

// GetLatestSubmissions returns the most recent completed submission of a user for every attempted problem.
func (s *SubmissionRepository) GetLatestSubmissions(ctx context.Context, userID string) ([]*arena.SubmissionHistory, error) {
	rows, _ := s.conn.Query(ctx, latestSubmissionsQuery, userID, int(arena.StateFinished), int(arena.StateFailed))
	return collectSubmissions(rows)
}

// GetUserScore sums the scores of the latest submissions, so resubmissions replace earlier scores.
func (s *SubmissionRepository) GetUserScore(ctx context.Context, userID string) (float64, error) {
	var score decimal.Decimal
	err := s.conn.QueryRow(ctx,
		"SELECT COALESCE(SUM(latest.score), 0) FROM ("+latestSubmissionsQuery+") latest",
		userID, int(arena.StateFinished), int(arena.StateFailed),
	).Scan(&score)
	if err != nil {
		return 0, err
	}
	return score.InexactFloat64(), nil
}

func (s *SubmissionRepository) problemCounts(ctx context.Context, query string, args ...any) ([]arena.ProblemCount, error) {
	rows, _ := s.conn.Query(ctx, query, args...)
	cnts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (arena.ProblemCount, error) {
		var cnt arena.ProblemCount
		err := row.Scan(&cnt.ProblemIndex, &cnt.Count)
		return cnt, err
	})
	if err != nil {
		return nil, err
	}
	return cnts, nil
}

// CountTests returns the number of test runs a user made on each problem.
func (s *SubmissionRepository) CountTests(ctx context.Context, userID string) ([]arena.ProblemCount, error) {
	return s.problemCounts(ctx,
		"SELECT question_index, COUNT(*) FROM test_runs WHERE user_id = $1 GROUP BY question_index ORDER BY question_index",
		userID,
	)
}

// GetAttempts returns the number of attempts a user made on each problem.
func (s *SubmissionRepository) GetAttempts(ctx context.Context, userID string) ([]arena.ProblemCount, error) {
	return s.problemCounts(ctx,
		"SELECT question_index, COUNT(*) FROM submission_history WHERE submitter = $1 AND state <> $2 GROUP BY question_index ORDER BY question_index",
		userID, int(arena.StateCancelled),
	)
}

func submissionFilterQuery(filter *arena.SubmissionFilter) sq.SelectBuilder {
	sb := sq.Select(submissionColumns).From("submission_history")
	if v := filter.ID; v != nil {
		sb = sb.Where(sq.Eq{"id": *v})
	}
	if v := filter.UserID; v != nil {
		sb = sb.Where(sq.Eq{"submitter": *v})
	}
	if v := filter.ProblemIndex; v != nil {
		sb = sb.Where(sq.Eq{"question_index": *v})
	}
	if v := filter.Success; v != nil {
		sb = sb.Where(sq.Eq{"success": *v})
	}
	sb = sb.OrderBy("time DESC", "id DESC")
	if filter.Limit > 0 {
		sb = sb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		sb = sb.Offset(uint64(filter.Offset))
	}
	return sb
}

func (s *SubmissionRepository) GetSubmissions(ctx context.Context, filter arena.SubmissionFilter) ([]*arena.SubmissionHistory, error) {
	query, args, err := submissionFilterQuery(&filter).ToSql()
	if err != nil {
		return nil, err
	}
	rows, _ := s.conn.Query(ctx, query, args...)
	return collectSubmissions(rows)
}

// GetSubmission returns nil if the submission does not exist.
func (s *SubmissionRepository) GetSubmission(ctx context.Context, id string) (*arena.SubmissionHistory, error) {
	subs, err := s.GetSubmissions(ctx, arena.SubmissionFilter{ID: &id, Limit: 1})
	if err != nil || len(subs) == 0 {
		return nil, err
	}
	return subs[0], nil
}

type dbTestResult struct {
	SubmissionID string  `db:"submission"`
	TestIndex    int     `db:"test_index"`
	Result       int     `db:"result"`
	Stdout       *string `db:"stdout"`
	Stderr       *string `db:"stderr"`
	ExitStatus   int     `db:"exit_status"`
	TimeTaken    int64   `db:"time_taken"`
}

func (s *SubmissionRepository) GetTestHistory(ctx context.Context, submissionID string) ([]*arena.TestHistory, error) {
	rows, _ := s.conn.Query(ctx,
		"SELECT submission, test_index, result, stdout, stderr, exit_status, time_taken FROM test_results WHERE submission = $1 ORDER BY test_index",
		submissionID,
	)
	tests, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[dbTestResult])
	if err != nil {
		return nil, err
	}
	full := make([]*arena.TestHistory, 0, len(tests))
	for _, t := range tests {
		res, err := arena.TestResultFromInt(t.Result)
		if err != nil {
			return nil, fmt.Errorf("test %d of submission %s: %w", t.TestIndex, t.SubmissionID, err)
		}
		full = append(full, &arena.TestHistory{
			SubmissionID: t.SubmissionID,
			TestIndex:    t.TestIndex,
			Result:       res,
			Stdout:       t.Stdout,
			Stderr:       t.Stderr,
			ExitStatus:   t.ExitStatus,
			TimeTaken:    time.Duration(t.TimeTaken),
		})
	}
	return full, nil
}

// CreateTestRun records that a user ran the visible tests of a problem.
func (s *SubmissionRepository) CreateTestRun(ctx context.Context, userID string, problem int) error {
	_, err := s.conn.Exec(ctx,
		"INSERT INTO test_runs (id, user_id, question_index) VALUES ($1, $2, $3)",
		arena.NewID(), userID, problem,
	)
	return err
}
