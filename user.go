package arena

import "time"

type Role int

const (
	RoleCompetitor Role = iota
	RoleHost
)

var roleNames = []string{"competitor", "host"}

func (r Role) String() string { return enumString(int(r), roleNames) }

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(text []byte) (err error) {
	*r, err = enumFromText[Role](string(text), roleNames, "role")
	return
}

// RoleFromInt decodes a persisted role.
func RoleFromInt(v int) (Role, error) { return enumFromInt[Role](v, roleNames, "role") }

type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	DisplayName  *string `json:"displayName"`
	PasswordHash string  `json:"-"`
	Role         Role    `json:"role"`
}

// Name returns the display name if set, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}

func (u *User) IsHost() bool {
	return u != nil && u.Role == RoleHost
}

// UserUpdate holds the fields a host may change on a team.
// A nil field is left untouched. ClearDisplayName takes precedence over DisplayName.
type UserUpdate struct {
	Username         *string
	DisplayName      *string
	ClearDisplayName bool
	PasswordHash     *string
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Announcement struct {
	ID      string    `json:"id"`
	Sender  string    `json:"sender"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
