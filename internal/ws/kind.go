package ws

import (
	"fmt"
	"log/slog"
)

// Kind identifies a live socket. A socket belongs either to a signed in team
// or to an anonymous leaderboard viewer, never both.
// Kind is comparable and is used as a map key.
type Kind struct {
	UserID string

	LeaderboardID string
	Addr          string
}

func UserKind(userID string) Kind {
	return Kind{UserID: userID}
}

func LeaderboardKind(id string, addr string) Kind {
	return Kind{LeaderboardID: id, Addr: addr}
}

func (k Kind) IsUser() bool {
	return k.UserID != ""
}

func (k Kind) String() string {
	if k.IsUser() {
		return "user:" + k.UserID
	}
	return fmt.Sprintf("leaderboard:%s", k.LeaderboardID)
}

func (k Kind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}
