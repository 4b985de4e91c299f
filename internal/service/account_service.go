package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/geofeed/internal/model"
	"github.com/d60-Lab/geofeed/internal/repository"
)

var ErrBadCredentials = errors.New("bad credentials")

// AccountService 注册/登录与令牌签发
type AccountService struct {
	users     repository.UserRepository
	jwtSecret []byte
	expire    time.Duration
}

func NewAccountService(users repository.UserRepository, jwtSecret string, expire time.Duration) *AccountService {
	if expire <= 0 {
		expire = 72 * time.Hour
	}
	return &AccountService{users: users, jwtSecret: []byte(jwtSecret), expire: expire}
}

func (s *AccountService) Register(ctx context.Context, username, email, password string, age int) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, Email: email, Password: string(hash), Age: age}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", ErrBadCredentials
	}
	claims := jwt.MapClaims{
		"sub": u.ID,
		"exp": time.Now().Add(s.expire).Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// ParseToken 校验令牌并返回用户 id
func (s *AccountService) ParseToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrBadCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrBadCredentials
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrBadCredentials
	}
	return sub, nil
}
