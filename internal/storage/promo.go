package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

func (pg *Postgres) GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var p model.PromoCode
	var targetIDs pq.StringArray
	row := pg.db.QueryRowxContext(ctx, `
SELECT code, kind, grant_amount, grant_expires_in, percent_off, amount_off_minor_units,
	expires_at, max_redemptions, max_redemptions_per_user, target_photographer_ids, active
FROM promo_codes WHERE code = $1`, code)

	var grantExpiresIn sql.NullInt64
	var percentOff sql.NullInt32
	var amountOff sql.NullInt64
	var expiresAt sql.NullTime

	err := row.Scan(&p.Code, &p.Kind, &p.GrantAmount, &grantExpiresIn, &percentOff, &amountOff,
		&expiresAt, &p.MaxRedemptions, &p.MaxRedemptionsPerUser, &targetIDs, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPromoNotFound
	}
	if err != nil {
		return nil, logQueryErr(ctx, "GetPromoCode", err)
	}

	if grantExpiresIn.Valid {
		d := time.Duration(grantExpiresIn.Int64) * time.Second
		p.GrantExpiresIn = &d
	}
	if percentOff.Valid {
		v := int(percentOff.Int32)
		p.PercentOff = &v
	}
	if amountOff.Valid {
		p.AmountOffMinorUnits = &amountOff.Int64
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	for _, s := range targetIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		p.TargetPhotographerIDs = append(p.TargetPhotographerIDs, id)
	}

	return &p, nil
}

func (pg *Postgres) CountPromoRedemptions(ctx context.Context, code string) (int, error) {
	var count int
	err := pg.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM promo_usages WHERE code = $1`, code)
	if err != nil {
		return 0, logQueryErr(ctx, "CountPromoRedemptions", err)
	}
	return count, nil
}

func (pg *Postgres) CountPromoRedemptionsByPhotographer(ctx context.Context, code string, photographerID uuid.UUID) (int, error) {
	var count int
	err := pg.db.GetContext(ctx, &count, `
SELECT COUNT(*) FROM promo_usages WHERE code = $1 AND photographer_id = $2`, code, photographerID)
	if err != nil {
		return 0, logQueryErr(ctx, "CountPromoRedemptionsByPhotographer", err)
	}
	return count, nil
}

func (pg *Postgres) InsertPromoUsage(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error) {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	var out model.PromoUsage
	err := tx.GetContext(ctx, &out, `
INSERT INTO promo_usages (id, code, photographer_id, correlation)
VALUES ($1, $2, $3, $4)
RETURNING id, code, photographer_id, correlation, created_at`,
		usage.ID, usage.Code, usage.PhotographerID, usage.Correlation)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, model.ErrAlreadyConsumed
		}
		return nil, fmt.Errorf("storage: InsertPromoUsage: %w", err)
	}
	return &out, nil
}
