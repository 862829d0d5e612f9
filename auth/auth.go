// Package auth is the identity provider: a users table with bcrypt
// passwords, HS256 tokens and the gin middleware that resolves them.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fluxy/db"
	"fluxy/types"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingFields      = errors.New("email and password are required")
)

const DefaultTokenTTL = 672 * time.Hour // 28 days

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		avatar TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL
	)`,
}

type Provider struct {
	conn   *sql.DB
	secret []byte
	ttl    time.Duration

	// OnLogin runs after a successful login, e.g. to mark presence.
	OnLogin func(userID int64)
}

func NewProvider(conn *sql.DB, secret string, ttl time.Duration) (*Provider, error) {
	if err := db.ApplySchema(conn, schema); err != nil {
		return nil, fmt.Errorf("users schema: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Provider{conn: conn, secret: []byte(secret), ttl: ttl}, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (p *Provider) Register(ctx context.Context, username, email, password string) (*types.UserData, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.UserData{Username: strings.TrimSpace(username), Email: email}
	err = p.conn.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password) VALUES (?, ?, ?) RETURNING id`,
		user.Username, user.Email, hashed,
	).Scan(&user.ID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Login checks the password and returns a signed token for the user.
func (p *Provider) Login(ctx context.Context, email, password string) (string, *types.UserData, error) {
	var user types.UserData
	err := p.conn.QueryRowContext(ctx,
		`SELECT id, username, email, avatar, password FROM users WHERE email = ?`,
		strings.TrimSpace(strings.ToLower(email)),
	).Scan(&user.ID, &user.Username, &user.Email, &user.Avatar, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	user.Password = ""

	token, err := p.IssueToken(&user)
	if err != nil {
		return "", nil, err
	}
	if p.OnLogin != nil {
		p.OnLogin(user.ID)
	}
	return token, &user, nil
}

func (p *Provider) Lookup(ctx context.Context, id int64) (*types.UserData, error) {
	var user types.UserData
	err := p.conn.QueryRowContext(ctx,
		`SELECT id, username, email, avatar FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

func (p *Provider) AllUsers(ctx context.Context) ([]types.UserData, error) {
	rows, err := p.conn.QueryContext(ctx, `SELECT id, username, email, avatar FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []types.UserData{}
	for rows.Next() {
		var u types.UserData
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Avatar); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DisplayNames maps each known id to its display name. Unknown ids are
// left out.
func (p *Provider) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if _, done := names[id]; done {
			continue
		}
		u, err := p.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		names[id] = u.DisplayName()
	}
	return names, nil
}

func (p *Provider) UpdateUsername(ctx context.Context, id int64, username string) error {
	return p.updateField(ctx, "username", id, strings.TrimSpace(username))
}

func (p *Provider) UpdateAvatar(ctx context.Context, id int64, avatar string) error {
	return p.updateField(ctx, "avatar", id, avatar)
}

func (p *Provider) updateField(ctx context.Context, column string, id int64, value string) error {
	res, err := p.conn.ExecContext(ctx, `UPDATE users SET `+column+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (p *Provider) IssueToken(user *types.UserData) (string, error) {
	claims := jwt.MapClaims{
		"userID":    user.ID,
		"userEmail": user.Email,
		"exp":       time.Now().Add(p.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates the signature and expiry and returns the subject id.
func (p *Provider) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, ok := claims["userID"].(float64)
	if !ok || id <= 0 {
		return 0, ErrInvalidToken
	}
	return int64(id), nil
}
