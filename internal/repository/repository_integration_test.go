//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matryer/is"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "arena",
				"POSTGRES_PASSWORD": "arena",
				"POSTGRES_DB":       "arena",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Couldn't start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatal(err)
	}

	dsn := fmt.Sprintf("postgres://arena:arena@%s:%s/arena?sslmode=disable", host, port.Port())
	base, err := db.NewPSQL(ctx, dsn, 10)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(base.Close)
	if err := base.RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}
	return base.Pool()
}

func createTeam(t *testing.T, users *UserRepository, name string) *arena.User {
	t.Helper()
	hash, err := HashPassword(name + "-pwd")
	if err != nil {
		t.Fatal(err)
	}
	u := &arena.User{Username: name, PasswordHash: hash, Role: arena.RoleCompetitor}
	if err := users.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestRepositories(t *testing.T) {
	pool := newTestPool(t)
	users := NewUserRepository(pool)
	subs := NewSubmissionRepository(pool)
	sessions := NewSessionRepository(pool)
	anns := NewAnnouncementRepository(pool)

	t.Run("Users", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		u := createTeam(t, users, "Users1")

		err := users.CreateUser(ctx, &arena.User{Username: "users1", PasswordHash: "x"})
		is.True(errors.Is(err, ErrUsernameTaken)) // usernames are case insensitive

		got, err := users.UserByName(ctx, "USERS1")
		is.NoErr(err)
		is.Equal(got.ID, u.ID)

		_, err = users.VerifyLogin(ctx, "users1", "wrong")
		is.True(errors.Is(err, ErrInvalidLogin))
		logged, err := users.VerifyLogin(ctx, "users1", "Users1-pwd")
		is.NoErr(err)
		is.Equal(logged.ID, u.ID)

		name := "The Users"
		is.NoErr(users.UpdateUser(ctx, u.ID, arena.UserUpdate{DisplayName: &name}))
		got, err = users.UserByID(ctx, u.ID)
		is.NoErr(err)
		is.Equal(got.Name(), "The Users")

		is.NoErr(users.UpdateUser(ctx, u.ID, arena.UserUpdate{ClearDisplayName: true}))
		got, err = users.UserByID(ctx, u.ID)
		is.NoErr(err)
		is.Equal(got.DisplayName, nil)

		is.True(errors.Is(users.UpdateUser(ctx, u.ID, arena.UserUpdate{}), arena.ErrNoUpdates))
		is.True(errors.Is(users.UpdateUser(ctx, "missing", arena.UserUpdate{DisplayName: &name}), arena.ErrNotFound))

		host, err := users.UpsertUser(ctx, &arena.User{Username: "host1", PasswordHash: "a", Role: arena.RoleHost})
		is.NoErr(err)
		again, err := users.UpsertUser(ctx, &arena.User{Username: "host1", PasswordHash: "b", Role: arena.RoleHost})
		is.NoErr(err)
		is.Equal(again.ID, host.ID)
		is.Equal(again.PasswordHash, "b")

		hosts, err := users.UsersWithRole(ctx, arena.RoleHost)
		is.NoErr(err)
		is.Equal(len(hosts), 1)

		is.NoErr(users.DeleteUser(ctx, host.ID))
		got, err = users.UserByID(ctx, host.ID)
		is.NoErr(err)
		is.Equal(got, nil)
	})

	t.Run("Sessions", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		u := createTeam(t, users, "sessions1")

		sess, err := sessions.CreateSession(ctx, u.ID, time.Hour)
		is.NoErr(err)
		is.Equal(len(sess.ID), arena.SessionTokenLength)

		got, expiresAt, err := sessions.SessionUser(ctx, sess.ID)
		is.NoErr(err)
		is.Equal(got.ID, u.ID)
		is.True(expiresAt.Sub(sess.ExpiresAt).Abs() < time.Millisecond)

		expired, err := sessions.CreateSession(ctx, u.ID, -time.Minute)
		is.NoErr(err)
		_, _, err = sessions.SessionUser(ctx, expired.ID)
		is.True(errors.Is(err, ErrSessionExpired))
		got, _, err = sessions.SessionUser(ctx, expired.ID)
		is.NoErr(err)
		is.Equal(got, nil) // removed by the previous lookup

		removed, err := sessions.RemoveUserSessions(ctx, u.ID)
		is.NoErr(err)
		is.Equal(removed, []string{sess.ID})
	})

	t.Run("Announcements", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()

		a1, err := anns.CreateAnnouncement(ctx, "host", " first ")
		is.NoErr(err)
		is.Equal(a1.Message, "first")
		_, err = anns.CreateAnnouncement(ctx, "host", "second")
		is.NoErr(err)

		all, err := anns.Announcements(ctx)
		is.NoErr(err)
		is.Equal(len(all), 2)
		is.Equal(all[0].ID, a1.ID)

		is.NoErr(anns.DeleteAnnouncement(ctx, a1.ID))
		is.True(errors.Is(anns.DeleteAnnouncement(ctx, a1.ID), arena.ErrNotFound))
	})

	t.Run("LatestAndScore", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		u := createTeam(t, users, "team1")
		base := time.Now().Add(-time.Hour).Truncate(time.Microsecond)

		sub := func(problem int, at time.Duration) arena.NewSubmission {
			return arena.NewSubmission{
				Time:         base.Add(at),
				Submitter:    u.ID,
				Code:         "print(1)",
				ProblemIndex: problem,
				Language:     "python",
				Compile:      arena.CompileOutput{Result: arena.CompileNone},
			}
		}

		_, err := subs.InsertFinishedSubmission(ctx, subs.Pool(), sub(0, 0), 3.0, true, time.Second)
		is.NoErr(err)
		_, err = subs.InsertFinishedSubmission(ctx, subs.Pool(), sub(1, time.Minute), 1.23456, true, time.Second)
		is.NoErr(err)

		score, err := subs.GetUserScore(ctx, u.ID)
		is.NoErr(err)
		is.Equal(score, 4.2346) // rounded on write

		// a failing resubmission replaces the earlier score
		_, err = subs.InsertFinishedSubmission(ctx, subs.Pool(), sub(0, 2*time.Minute), 0, false, time.Second)
		is.NoErr(err)
		score, err = subs.GetUserScore(ctx, u.ID)
		is.NoErr(err)
		is.Equal(score, 1.2346)

		latest, err := subs.GetLatestSubmissions(ctx, u.ID)
		is.NoErr(err)
		is.Equal(len(latest), 2)
		is.Equal(latest[0].ProblemIndex, 0)
		is.True(latest[0].Time.Equal(base.Add(2 * time.Minute)))
		is.Equal(latest[0].Success, false)

		attempts, err := subs.CountPreviousSubmissions(ctx, u.ID, 0)
		is.NoErr(err)
		is.Equal(attempts, 2)

		cnts, err := subs.GetAttempts(ctx, u.ID)
		is.NoErr(err)
		is.Equal(cnts, []arena.ProblemCount{{ProblemIndex: 0, Count: 2}, {ProblemIndex: 1, Count: 1}})

		_, err = subs.InsertFinishedSubmission(ctx, subs.Pool(), sub(2, 0), 1, false, 0)
		is.True(err != nil) // score without success

		history, err := subs.GetSubmissions(ctx, arena.SubmissionFilter{UserID: &u.ID, Limit: 2})
		is.NoErr(err)
		is.Equal(len(history), 2)
		is.True(history[0].Time.After(history[1].Time))
	})

	t.Run("PartialSubmission", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		u := createTeam(t, users, "partial1")

		partial, err := subs.CreateSubmissionHistory(ctx, subs.Pool(), arena.NewSubmission{
			Submitter: u.ID, Code: "x", ProblemIndex: 0, Language: "python",
		})
		is.NoErr(err)

		var wg sync.WaitGroup
		var mu sync.Mutex
		var ok, terminal int
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := partial.Finish(ctx, subs.Pool(), 2, true, time.Second)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, arena.ErrAlreadyTerminal):
					terminal++
				}
			}()
		}
		wg.Wait()
		is.Equal(ok, 1)
		is.Equal(terminal, 3)

		_, err = partial.Cancel(ctx, subs.Pool())
		is.True(errors.Is(err, arena.ErrAlreadyTerminal))

		got, err := subs.GetSubmission(ctx, partial.ID)
		is.NoErr(err)
		is.Equal(got.State, arena.StateFinished)
		is.Equal(got.Score, 2.0)

		cancelled, err := subs.CreateSubmissionHistory(ctx, subs.Pool(), arena.NewSubmission{
			Submitter: u.ID, Code: "y", ProblemIndex: 0, Language: "python",
		})
		is.NoErr(err)
		_, err = cancelled.Cancel(ctx, subs.Pool())
		is.NoErr(err)

		attempts, err := subs.CountPreviousSubmissions(ctx, u.ID, 0)
		is.NoErr(err)
		is.Equal(attempts, 1) // cancelled submissions are not attempts
	})

	t.Run("OtherCompletions", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		a := createTeam(t, users, "first1")
		b := createTeam(t, users, "second1")
		c := createTeam(t, users, "third1")
		at := time.Now().Add(-time.Hour).Truncate(time.Microsecond)

		solve := func(u *arena.User, when time.Time) {
			_, err := subs.InsertFinishedSubmission(ctx, subs.Pool(), arena.NewSubmission{
				Time: when, Submitter: u.ID, Code: "x", ProblemIndex: 7, Language: "python",
			}, 1, true, 0)
			is.NoErr(err)
		}
		solve(a, at)
		solve(a, at.Add(time.Second))
		solve(b, at.Add(time.Minute))

		cnt, err := subs.CountOtherSubmissions(ctx, subs.Pool(), c.ID, 7, at.Add(time.Minute))
		is.NoErr(err)
		is.Equal(cnt, 1) // strictly earlier, distinct users

		cnt, err = subs.CountOtherSubmissions(ctx, subs.Pool(), a.ID, 7, at.Add(time.Hour))
		is.NoErr(err)
		is.Equal(cnt, 1)
	})

	t.Run("TestHistoryAndRuns", func(t *testing.T) {
		is := is.New(t)
		ctx := context.Background()
		u := createTeam(t, users, "tests1")

		err := subs.Tx(ctx, func(q Querier) error {
			sub, err := subs.InsertFinishedSubmission(ctx, q, arena.NewSubmission{
				Submitter: u.ID, Code: "x", ProblemIndex: 0, Language: "python",
			}, 0, false, 0)
			if err != nil {
				return err
			}
			for i, res := range []arena.TestResult{arena.TestPass, arena.TestTimedOut} {
				if err := subs.CreateSubmissionTestHistory(ctx, q, sub.ID, arena.TestHistory{TestIndex: i, Result: res, ExitStatus: i}); err != nil {
					return err
				}
			}
			return subs.CreateSubmissionTestHistory(ctx, q, sub.ID, arena.TestHistory{TestIndex: 0})
		})
		is.True(err != nil) // duplicate test index

		// the whole transaction was rolled back
		history, err := subs.GetSubmissions(ctx, arena.SubmissionFilter{UserID: &u.ID})
		is.NoErr(err)
		is.Equal(len(history), 0)

		var subID string
		err = subs.Tx(ctx, func(q Querier) error {
			sub, err := subs.InsertFinishedSubmission(ctx, q, arena.NewSubmission{
				Submitter: u.ID, Code: "x", ProblemIndex: 0, Language: "python",
			}, 0, false, 0)
			if err != nil {
				return err
			}
			subID = sub.ID
			return subs.CreateSubmissionTestHistory(ctx, q, sub.ID, arena.TestHistory{TestIndex: 0, Result: arena.TestIncorrectOutput})
		})
		is.NoErr(err)
		tests, err := subs.GetTestHistory(ctx, subID)
		is.NoErr(err)
		is.Equal(len(tests), 1)
		is.Equal(tests[0].Result, arena.TestIncorrectOutput)

		is.NoErr(subs.CreateTestRun(ctx, u.ID, 3))
		is.NoErr(subs.CreateTestRun(ctx, u.ID, 3))
		runs, err := subs.CountTests(ctx, u.ID)
		is.NoErr(err)
		is.Equal(runs, []arena.ProblemCount{{ProblemIndex: 3, Count: 2}})
	})
}
