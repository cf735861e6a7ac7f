package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/incentive/models"
	"github.com/cppla/incentive/utils"
)

// Mailer delivers plain-text mail.
type Mailer interface {
	Send(to, subject, body string) error
}

// OTPService is the email-verification gate in front of token issuance.
type OTPService struct {
	db       *gorm.DB
	mailer   Mailer
	clock    utils.Clock
	isAdmin  func(email string) bool
	ttl      time.Duration
	cooldown time.Duration
	log      *zap.Logger
}

func NewOTPService(db *gorm.DB, mailer Mailer, clock utils.Clock, isAdmin func(string) bool, log *zap.Logger) *OTPService {
	if log == nil {
		log = zap.NewNop()
	}
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &OTPService{
		db:       db,
		mailer:   mailer,
		clock:    clock,
		isAdmin:  isAdmin,
		ttl:      5 * time.Minute,
		cooldown: time.Minute,
		log:      log.Named("otp"),
	}
}

// Request mails a 6-digit code valid for five minutes.
func (o *OTPService) Request(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if !utils.EmailCooldownTrySet(email, o.cooldown) {
		return ErrCodeCooldown
	}
	code := utils.GenerateVerificationCode(6)
	utils.SaveCode(email, code, o.ttl)
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(o.ttl.Minutes()))
	if err := o.mailer.Send(email, "Verification code", body); err != nil {
		o.log.Error("send verification mail failed", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Verify consumes the code and marks the email verified, creating the account shell on
// first contact so a token can be issued to it.
func (o *OTPService) Verify(ctx context.Context, email, code string) (*models.User, error) {
	email = NormalizeEmail(email)
	if !utils.VerifyAndConsumeCode(email, strings.TrimSpace(code)) {
		return nil, ErrInvalidCode
	}

	now := o.clock.Now()
	var user models.User
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			role := models.RoleEmployee
			if o.isAdmin(email) {
				role = models.RoleAdmin
			}
			user = models.User{
				Email:           email,
				DisplayName:     defaultDisplayName(email),
				Role:            role,
				EmailVerifiedAt: &now,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user.IsVerified() {
			return nil
		}
		user.EmailVerifiedAt = &now
		return tx.Model(&user).Update("email_verified_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

const maxDisplayName = 64

func defaultDisplayName(email string) string {
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	if runes := []rune(name); len(runes) > maxDisplayName {
		name = string(runes[:maxDisplayName])
	}
	return name
}
