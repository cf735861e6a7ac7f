package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

const (
	tokenAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenSuffixLen  = 6
	maxMintAttempts = 5
	disabledByAdmin = "disabled by administrator"
)

// TokenService owns the exclusive-token lifecycle: quota-limited issuance, the login and
// registration gates, and disabling.
type TokenService struct {
	db     *gorm.DB
	ledger *Ledger
	clock  utils.Clock
	rules  Rules
	log    *zap.Logger
}

func NewTokenService(db *gorm.DB, ledger *Ledger, clock utils.Clock, rules Rules, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{db: db, ledger: ledger, clock: clock, rules: rules, log: log.Named("token")}
}

// NormalizeEmail is the canonical form used for lookups and quota counting.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MintToken builds "{prefix}-{year}-{6 chars of A-Z0-9}" from crypto/rand.
func MintToken(prefix string, year int) (string, error) {
	var b strings.Builder
	b.Grow(tokenSuffixLen)
	limit := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}
	return fmt.Sprintf("%s-%d-%s", prefix, year, b.String()), nil
}

// Issue returns the user's exclusive token, minting one if none is held. Re-requesting an
// existing token does not consume quota. Minting is serialized per user by the row lock.
func (s *TokenService) Issue(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		token, err := s.issueOnce(ctx, email)
		if errors.Is(err, errTokenCollision) {
			s.log.Warn("token collision, minting again", zap.String("email", email), zap.Int("attempt", attempt))
			continue
		}
		return token, err
	}
	return "", fmt.Errorf("mint token for %s: %w", email, errTokenCollision)
}

func (s *TokenService) issueOnce(ctx context.Context, email string) (string, error) {
	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", email).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if !user.IsVerified() {
			return ErrEmailNotVerified
		}
		if user.HasToken() {
			token = *user.ExclusiveToken
			return nil
		}
		if user.TokenDisabledAt != nil {
			return &TokenDisabledError{DisabledAt: *user.TokenDisabledAt, Reason: user.TokenDisabledReason}
		}

		now := s.clock.Now()
		var issued int64
		if err := tx.Model(&models.TokenIssuance{}).
			Where("email = ? AND issued_at >= ? AND issued_at < ?", email, utils.StartOfMonth(now), utils.StartOfNextMonth(now)).
			Count(&issued).Error; err != nil {
			return fmt.Errorf("count issuances: %w", err)
		}
		if issued >= int64(s.rules.MonthlyTokenQuota) {
			return ErrQuotaExceeded
		}

		candidate, err := MintToken(s.rules.TokenPrefix, now.Year())
		if err != nil {
			return err
		}
		var taken int64
		if err := tx.Unscoped().Model(&models.User{}).Where("exclusive_token = ?", candidate).Count(&taken).Error; err != nil {
			return fmt.Errorf("check token: %w", err)
		}
		if taken > 0 {
			return errTokenCollision
		}

		if err := tx.Model(&user).Updates(map[string]interface{}{
			"exclusive_token": candidate,
			"token_issued_at": now,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errTokenCollision
			}
			return fmt.Errorf("store token: %w", err)
		}
		if err := tx.Create(&models.TokenIssuance{Email: email, IssuedAt: now}).Error; err != nil {
			return fmt.Errorf("record issuance: %w", err)
		}
		token = candidate
		s.log.Info("exclusive token issued", zap.Uint("user_id", user.ID), zap.Int64("issued_this_month", issued+1))
		return nil
	})
	return token, err
}

// IssuedThisMonth counts issuances for the email in the clock's current calendar month.
func (s *TokenService) IssuedThisMonth(ctx context.Context, email string) (int64, error) {
	now := s.clock.Now()
	var issued int64
	err := s.db.WithContext(ctx).Model(&models.TokenIssuance{}).
		Where("email = ? AND issued_at >= ? AND issued_at < ?", NormalizeEmail(email), utils.StartOfMonth(now), utils.StartOfNextMonth(now)).
		Count(&issued).Error
	if err != nil {
		return 0, fmt.Errorf("count issuances: %w", err)
	}
	return issued, nil
}

// Disable marks the user's token disabled. It reports false when the token was already
// disabled, leaving the first timestamp and reason intact, and ErrUserNotFound for an unknown id.
func (s *TokenService) Disable(ctx context.Context, userID uint, reason string) (bool, error) {
	if reason == "" {
		reason = disabledByAdmin
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND token_disabled_at IS NULL", userID).
		Updates(map[string]interface{}{
			"token_disabled_at":     s.clock.Now(),
			"token_disabled_reason": reason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("disable token %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, s.mustExist(ctx, userID)
	}
	s.log.Warn("exclusive token disabled", zap.Uint("user_id", userID), zap.String("reason", reason))
	return true, nil
}

// Reactivate clears a disabled token. Only administrators reach this path.
func (s *TokenService) Reactivate(ctx context.Context, userID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND token_disabled_at IS NOT NULL", userID).
		Updates(map[string]interface{}{
			"token_disabled_at":     nil,
			"token_disabled_reason": "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("reactivate token %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, s.mustExist(ctx, userID)
	}
	s.log.Info("exclusive token reactivated", zap.Uint("user_id", userID))
	return true, nil
}

// mustExist tells an unchanged row apart from a missing user.
func (s *TokenService) mustExist(ctx context.Context, userID uint) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Authenticate is the login gate. Token mismatch is checked before the password so a
// wrong token never reveals whether the password was right.
func (s *TokenService) Authenticate(ctx context.Context, email, password, token string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("PointsAccount").
		Where("email = ?", NormalizeEmail(email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !tokenMatches(&user, token) {
		return nil, ErrInvalidToken
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if user.TokenDisabledAt != nil {
		return nil, &TokenDisabledError{DisabledAt: *user.TokenDisabledAt, Reason: user.TokenDisabledReason}
	}
	return &user, nil
}

func tokenMatches(user *models.User, token string) bool {
	if !user.HasToken() || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*user.ExclusiveToken), []byte(strings.TrimSpace(token))) == 1
}

// RegisterInput completes an account that already holds an issued token.
type RegisterInput struct {
	Email       string
	Token       string
	DisplayName string
	Password    string
}

// Register sets the password and display name of a verified user presenting their token and
// opens the points account. An account can be completed once.
func (s *TokenService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", email).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if !user.IsVerified() {
			return ErrEmailNotVerified
		}
		if user.TokenDisabledAt != nil {
			return &TokenDisabledError{DisabledAt: *user.TokenDisabledAt, Reason: user.TokenDisabledReason}
		}
		if !tokenMatches(&user, in.Token) {
			return ErrInvalidToken
		}
		if user.PasswordHash != "" {
			return ErrAlreadyRegistered
		}

		updates := map[string]interface{}{"password_hash": hash}
		if name := strings.TrimSpace(in.DisplayName); name != "" {
			updates["display_name"] = name
			user.DisplayName = name
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("complete user: %w", err)
		}
		user.PasswordHash = hash
		return s.ledger.EnsureAccountTx(tx, user.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return &user, nil
}
