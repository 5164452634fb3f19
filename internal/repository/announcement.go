package repository

import (
	"context"
	"strings"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AnnouncementRepository struct {
	conn *pgxpool.Pool
}

func NewAnnouncementRepository(conn *pgxpool.Pool) *AnnouncementRepository {
	return &AnnouncementRepository{conn: conn}
}

type dbAnnouncement struct {
	ID      string    `db:"id"`
	Sender  string    `db:"sender"`
	Time    time.Time `db:"time"`
	Message string    `db:"message"`
}

func (a *dbAnnouncement) full() *arena.Announcement {
	return &arena.Announcement{ID: a.ID, Sender: a.Sender, Time: a.Time, Message: a.Message}
}

func (s *AnnouncementRepository) CreateAnnouncement(ctx context.Context, sender, message string) (*arena.Announcement, error) {
	var ann dbAnnouncement
	err := s.conn.QueryRow(ctx,
		"INSERT INTO announcements (id, sender, message) VALUES ($1, $2, $3) RETURNING id, sender, time, message",
		arena.NewID(), sender, strings.TrimSpace(message),
	).Scan(&ann.ID, &ann.Sender, &ann.Time, &ann.Message)
	if err != nil {
		return nil, err
	}
	return ann.full(), nil
}

// Announcements returns all announcements, oldest first.
func (s *AnnouncementRepository) Announcements(ctx context.Context) ([]*arena.Announcement, error) {
	rows, _ := s.conn.Query(ctx, "SELECT id, sender, time, message FROM announcements ORDER BY time ASC, id ASC")
	anns, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[dbAnnouncement])
	if err != nil {
		return nil, err
	}
	full := make([]*arena.Announcement, 0, len(anns))
	for _, ann := range anns {
		full = append(full, ann.full())
	}
	return full, nil
}

func (s *AnnouncementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	tag, err := s.conn.Exec(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return arena.ErrNotFound
	}
	return nil
}
