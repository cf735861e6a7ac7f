package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/incentive/models"
)

// Ledger is the single authority for point balances. Every mutation is a locked
// read-clamp-write of the account plus an appended PointTransaction, committed together.
type Ledger struct {
	db    *gorm.DB
	rules Rules
	log   *zap.Logger
}

func NewLedger(db *gorm.DB, rules Rules, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: db, rules: rules, log: log.Named("ledger")}
}

// Adjust applies change to the user's balance in its own transaction.
func (l *Ledger) Adjust(ctx context.Context, userID uint, change int, reason models.PointReason, note string, metadata map[string]interface{}) (*models.PointsAccount, error) {
	var account *models.PointsAccount
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		account, err = l.AdjustTx(tx, userID, change, reason, note, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// AdjustTx is Adjust inside a caller-owned transaction. The stored balance is clamped to
// [0, PointLimit]; the log row keeps the requested change, so at the bounds the log does not
// sum to the balance.
func (l *Ledger) AdjustTx(tx *gorm.DB, userID uint, change int, reason models.PointReason, note string, metadata map[string]interface{}) (*models.PointsAccount, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, reason)
	}

	var owner models.User
	if err := tx.Select("id").First(&owner, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}

	account, err := l.lockAccount(tx, userID)
	if err != nil {
		return nil, err
	}
	if change == 0 {
		return account, nil
	}

	before := account.CurrentPoints
	account.CurrentPoints = l.rules.Clamp(before + change)
	if err := tx.Model(account).Update("current_points", account.CurrentPoints).Error; err != nil {
		return nil, fmt.Errorf("update points account %d: %w", userID, err)
	}

	entry := models.PointTransaction{
		UserID: userID,
		Change: change,
		Reason: reason,
		Note:   note,
	}
	if len(metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(metadata)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("append point transaction: %w", err)
	}

	l.log.Debug("points adjusted",
		zap.Uint("user_id", userID),
		zap.Int("change", change),
		zap.String("reason", string(reason)),
		zap.Int("before", before),
		zap.Int("after", account.CurrentPoints),
	)
	return account, nil
}

// lockAccount ensures the account row exists and returns it locked for update.
func (l *Ledger) lockAccount(tx *gorm.DB, userID uint) (*models.PointsAccount, error) {
	seed := models.PointsAccount{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure points account %d: %w", userID, err)
	}

	var account models.PointsAccount
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return nil, fmt.Errorf("lock points account %d: %w", userID, err)
	}
	return &account, nil
}

// EnsureAccountTx creates the zero-balance account for a user if it is missing.
func (l *Ledger) EnsureAccountTx(tx *gorm.DB, userID uint) error {
	_, err := l.lockAccount(tx, userID)
	return err
}

// ResetAll zeroes every nonzero balance with a WEEKLY_RESET entry. Each account commits on
// its own; failures are logged and the remaining accounts are still processed.
func (l *Ledger) ResetAll(ctx context.Context) error {
	ids, err := l.nonzeroAccounts(l.db.WithContext(ctx))
	if err != nil {
		return err
	}
	var errs []error
	for _, userID := range ids {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return l.zeroTx(tx, userID)
		})
		if err != nil {
			l.log.Error("reset account failed", zap.Uint("user_id", userID), zap.Error(err))
			errs = append(errs, fmt.Errorf("reset user %d: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// ResetAllTx zeroes every nonzero balance inside the caller's transaction.
func (l *Ledger) ResetAllTx(tx *gorm.DB) error {
	ids, err := l.nonzeroAccounts(tx)
	if err != nil {
		return err
	}
	for _, userID := range ids {
		if err := l.zeroTx(tx, userID); err != nil {
			return fmt.Errorf("reset user %d: %w", userID, err)
		}
	}
	return nil
}

// nonzeroAccounts skips accounts whose owner is soft-deleted; their balances stay frozen.
func (l *Ledger) nonzeroAccounts(db *gorm.DB) ([]uint, error) {
	var ids []uint
	if err := db.Model(&models.PointsAccount{}).
		Joins("JOIN users ON users.id = points_accounts.user_id AND users.deleted_at IS NULL").
		Where("points_accounts.current_points <> ?", 0).
		Order("points_accounts.user_id").
		Pluck("points_accounts.user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list nonzero accounts: %w", err)
	}
	return ids, nil
}

// zeroTx reads the balance under the row lock so a concurrent adjustment is never undone.
func (l *Ledger) zeroTx(tx *gorm.DB, userID uint) error {
	account, err := l.lockAccount(tx, userID)
	if err != nil {
		return err
	}
	if account.CurrentPoints == 0 {
		return nil
	}
	_, err = l.AdjustTx(tx, userID, -account.CurrentPoints, models.ReasonWeeklyReset, "weekly reset", nil)
	return err
}

// Balance returns the user's current points; a missing account reads as zero.
func (l *Ledger) Balance(ctx context.Context, userID uint) (int, error) {
	var account models.PointsAccount
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load points account %d: %w", userID, err)
	}
	return account.CurrentPoints, nil
}

// History returns the newest log entries first.
func (l *Ledger) History(ctx context.Context, userID uint, limit int) ([]models.PointTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.PointTransaction
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load point history %d: %w", userID, err)
	}
	return entries, nil
}
