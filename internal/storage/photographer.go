package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

func (pg *Postgres) GetPhotographer(ctx context.Context, id uuid.UUID) (*model.Photographer, error) {
	var p model.Photographer
	err := pg.db.GetContext(ctx, &p, `
SELECT id, external_auth_id, email, display_name, created_at, banned_at, deleted_at, cached_balance
FROM photographers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPhotographerNotFound
	}
	if err != nil {
		return nil, logQueryErr(ctx, "GetPhotographer", err)
	}
	return &p, nil
}

func (pg *Postgres) GetPhotographerByExternalAuthID(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
	var p model.Photographer
	err := pg.db.GetContext(ctx, &p, `
SELECT id, external_auth_id, email, display_name, created_at, banned_at, deleted_at, cached_balance
FROM photographers WHERE external_auth_id = $1`, externalAuthID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPhotographerNotFound
	}
	if err != nil {
		return nil, logQueryErr(ctx, "GetPhotographerByExternalAuthID", err)
	}
	return &p, nil
}

func (pg *Postgres) CreatePhotographer(ctx context.Context, p *model.Photographer) (*model.Photographer, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var out model.Photographer
	err := pg.db.GetContext(ctx, &out, `
INSERT INTO photographers (id, external_auth_id, email, display_name)
VALUES ($1, $2, $3, $4)
RETURNING id, external_auth_id, email, display_name, created_at, banned_at, deleted_at, cached_balance`,
		p.ID, p.ExternalAuthID, p.Email, p.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("storage: CreatePhotographer: %w", err)
	}
	return &out, nil
}
