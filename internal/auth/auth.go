package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"telegram-tutor-bot/internal/models"
	apperrors "telegram-tutor-bot/pkg/errors"
)

// StudentFinder is the part of the record store the resolver needs.
type StudentFinder interface {
	GetStudent(ctx context.Context, login string) (*models.Student, error)
	GetStudentByChat(ctx context.Context, chatID int64) (*models.Student, error)
}

// Identity is what an inbound update tells us about the actor.
type Identity struct {
	UserID        int64
	ChatID        int64 // defaults to UserID, they match in private chats
	Login         string
	Password      string
	CheckPassword bool
}

func (id Identity) chat() int64 {
	if id.ChatID != 0 {
		return id.ChatID
	}
	return id.UserID
}

// Result of a resolution. Student is set only for RoleStudent.
type Result struct {
	Role    models.Role
	Student *models.Student
}

type Resolver struct {
	DB      StudentFinder
	AdminID int64
}

func NewResolver(db StudentFinder, adminID int64) *Resolver {
	return &Resolver{DB: db, AdminID: adminID}
}

// Resolve decides between Admin, Student and Unknown.
//
// The admin is recognised by Telegram user id alone and never has a password
// checked. An Unknown result with a nil error means "no such actor";
// ErrInvalidCredentials means the login exists but the password is wrong.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (Result, error) {
	if id.UserID != 0 && id.UserID == r.AdminID {
		return Result{Role: models.RoleAdmin}, nil
	}

	var (
		s   *models.Student
		err error
	)
	if id.Login != "" {
		s, err = r.DB.GetStudent(ctx, id.Login)
	} else {
		s, err = r.DB.GetStudentByChat(ctx, id.chat())
	}
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return Result{Role: models.RoleUnknown}, nil
	}
	if err != nil {
		return Result{Role: models.RoleUnknown}, err
	}

	if id.Login != "" && id.CheckPassword && !CheckPassword(s.PasswordHash, id.Password) {
		return Result{Role: models.RoleUnknown}, apperrors.ErrInvalidCredentials
	}
	return Result{Role: models.RoleStudent, Student: s}, nil
}

func (r *Resolver) IsAdmin(userID int64) bool {
	return userID != 0 && userID == r.AdminID
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword never matches an empty hash: self-registered students have
// no password and can only be reached through their bound chat.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
