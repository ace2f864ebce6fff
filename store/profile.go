package store

import (
	"context"
	"errors"
	"time"

	"intranet/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProfileStorer keeps per-client profiles, created lazily on first read.
type ProfileStorer interface {
	GetOrCreateProfile(ctx context.Context, clientID string) (*types.Profile, error)
	UpdateProfile(ctx context.Context, clientID, displayName string) (*types.Profile, error)
}

var profileColumns = []string{"id", "client_id", "display_name", "created_at", "updated_at"}

func (p *PostgresStore) GetOrCreateProfile(ctx context.Context, clientID string) (*types.Profile, error) {
	profile, err := p.getProfile(ctx, clientID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created := types.Profile{
		ID:        uuid.New(),
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query, args, err := psql.Insert("profiles").
		Columns("id", "client_id", "created_at", "updated_at").
		Values(created.ID, created.ClientID, created.CreatedAt, created.UpdatedAt).
		Suffix("ON CONFLICT (client_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return nil, err
	}

	// Re-read so a concurrent insert still returns the surviving row.
	return p.getProfile(ctx, clientID)
}

func (p *PostgresStore) UpdateProfile(ctx context.Context, clientID, displayName string) (*types.Profile, error) {
	if _, err := p.GetOrCreateProfile(ctx, clientID); err != nil {
		return nil, err
	}

	var name any
	if displayName != "" {
		name = displayName
	}
	query, args, err := psql.Update("profiles").
		Set("display_name", name).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return nil, err
	}
	return p.getProfile(ctx, clientID)
}

func (p *PostgresStore) getProfile(ctx context.Context, clientID string) (*types.Profile, error) {
	query, args, err := psql.Select(profileColumns...).
		From("profiles").
		Where(sq.Eq{"client_id": clientID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		profile     types.Profile
		displayName *string
	)
	row := p.pool.QueryRow(ctx, query, args...)
	err = row.Scan(&profile.ID, &profile.ClientID, &displayName, &profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		profile.DisplayName = *displayName
	}
	return &profile, nil
}
