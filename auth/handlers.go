package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CookieName = "auth_token"

// Middleware resolves the bearer token (or the auth_token cookie) to a user
// and sets userID, userEmail and userUsername on the context.
func (p *Provider) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString, _ = c.Cookie(CookieName)
		}
		if tokenString == "" {
			c.JSON(401, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		userID, err := p.ParseToken(tokenString)
		if err != nil {
			c.JSON(401, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		user, err := p.Lookup(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				c.JSON(401, gin.H{"error": "User no longer exists"})
			} else {
				log.Println("auth middleware:", err)
				c.JSON(500, gin.H{"error": "Error loading user"})
			}
			c.Abort()
			return
		}

		c.Set("userID", user.ID)
		c.Set("userEmail", user.Email)
		c.Set("userUsername", user.Username)
		c.Next()
	}
}

func (p *Provider) HandleRegister(c *gin.Context) {
	var json struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&json); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request data"})
		return
	}

	user, err := p.Register(c.Request.Context(), json.Username, json.Email, json.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrMissingFields):
			c.JSON(400, gin.H{"error": err.Error()})
		default:
			log.Println("HandleRegister:", err)
			c.JSON(500, gin.H{"error": "Database error inserting data"})
		}
		return
	}
	c.JSON(201, gin.H{"message": "Successfully registered", "user": user})
}

func (p *Provider) HandleLogin(c *gin.Context) {
	var json struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&json); err != nil {
		c.JSON(400, gin.H{"error": "Invalid request data"})
		return
	}

	token, user, err := p.Login(c.Request.Context(), json.Email, json.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		log.Println("HandleLogin:", err)
		c.JSON(500, gin.H{"error": "Error extracting data"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(p.ttl.Seconds()), "/", "", false, true)
	c.JSON(200, gin.H{"auth_token": token, "user": user})
}

// ClearCookie expires the auth cookie on the client.
func ClearCookie(c *gin.Context) {
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}
