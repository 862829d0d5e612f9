package types

import "time"

const (
	RoleOwner  = "fondateur"
	RoleAdmin  = "admin"
	RoleMember = "membre"

	StatusOnline  = "online"
	StatusOffline = "offline"

	DefaultServerImage = "/logo_fluxy.png"
)

type UserData struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar,omitempty"`
	Password string `json:"-"`
}

// DisplayName is the name shown in chat frames; it falls back to the email.
func (u UserData) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

type Server struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Image     string  `json:"image,omitempty"`
	OwnerID   int64   `json:"owner_id"`
	AdminIDs  []int64 `json:"admin_id"`
	MemberIDs []int64 `json:"member_id"`
	Invite    string  `json:"lien,omitempty"`
}

type Channel struct {
	ID       int64  `json:"id"`
	ServerID int64  `json:"server_id"`
	Name     string `json:"name"`
	Position int64  `json:"position"`
}

type Message struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	UserID    int64     `json:"user"`
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"message"`
	Time      time.Time `json:"time"`
}

type ServerSummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	IsOwner bool   `json:"is_owner"`
	IsAdmin bool   `json:"is_admin"`
}

type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}
