package repository

import (
	"context"
	"time"

	"github.com/mironalin/BeamerParts-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReservationRepository interface {
	CreateTx(tx *gorm.DB, r *model.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	FindByIDTx(tx *gorm.DB, id uuid.UUID, forUpdate bool) (*model.Reservation, error)
	// ListActiveByKeyTx returns active reservations for a key, oldest first,
	// locked FOR UPDATE so concurrent releases serialize on the same rows.
	ListActiveByKeyTx(tx *gorm.DB, sku, variantSKU string) ([]model.Reservation, error)
	// DeactivateTx flips an active reservation to inactive. The active guard
	// makes it safe to race with the sweeper: the loser updates zero rows.
	DeactivateTx(tx *gorm.DB, id uuid.UUID, reason string, at time.Time) (bool, error)
	ReduceQuantityTx(tx *gorm.DB, id uuid.UUID, newQuantity int) error
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error)
	SumActiveByKey(ctx context.Context, sku, variantSKU string) (int, error)
}

type reservationRepo struct{ db *gorm.DB }

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepo{db: db}
}

func (r *reservationRepo) CreateTx(tx *gorm.DB, res *model.Reservation) error {
	return tx.Create(res).Error
}

func (r *reservationRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) FindByIDTx(tx *gorm.DB, id uuid.UUID, forUpdate bool) (*model.Reservation, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var res model.Reservation
	err := q.First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) ListActiveByKeyTx(tx *gorm.DB, sku, variantSKU string) ([]model.Reservation, error) {
	var out []model.Reservation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku = ? AND variant_sku = ? AND active = true", sku, variantSKU).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *reservationRepo) DeactivateTx(tx *gorm.DB, id uuid.UUID, reason string, at time.Time) (bool, error) {
	res := tx.Model(&model.Reservation{}).
		Where("id = ? AND active = true", id).
		Updates(map[string]interface{}{
			"active":         false,
			"released_at":    at,
			"release_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reservationRepo) ReduceQuantityTx(tx *gorm.DB, id uuid.UUID, newQuantity int) error {
	return tx.Model(&model.Reservation{}).
		Where("id = ? AND active = true", id).
		Update("quantity", newQuantity).Error
}

func (r *reservationRepo) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.db.WithContext(ctx).
		Where("active = true AND expires_at < ?", cutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *reservationRepo) SumActiveByKey(ctx context.Context, sku, variantSKU string) (int, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("sku = ? AND variant_sku = ? AND active = true", sku, variantSKU).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	return int(sum), err
}
