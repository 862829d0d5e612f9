package routes

import (
	"context"
	"errors"
	"log"
	"strconv"

	"fluxy/auth"
	"fluxy/chatroom"
	"fluxy/servers"
	"fluxy/store"
	"fluxy/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// API holds the collaborators the HTTP handlers call into.
type API struct {
	Engine   *servers.Engine
	Auth     *auth.Provider
	Registry *chatroom.Registry
}

func SetupAPIRoutes(r *gin.Engine, a *API) {
	r.POST("/register", a.Auth.HandleRegister)
	r.POST("/login", a.Auth.HandleLogin)

	api := r.Group("/api", a.Auth.Middleware())
	{
		api.GET("/user", a.handleCurrentUser)
		api.POST("/logout", a.handleLogout)
		api.GET("/allusers", a.handleAllUsers)
		api.POST("/update-username", a.handleUpdateUsername)
		api.POST("/update-profile", a.handleUpdateProfile)

		api.POST("/create-server", a.handleCreateServer)
		api.POST("/join-server", a.handleJoinServer)
		api.POST("/delete-server", a.handleDeleteServer)
		api.POST("/update-server", a.handleUpdateServer)
		api.POST("/leave-server", a.handleLeaveServer)
		api.POST("/update-member-role", a.handleUpdateMemberRole)
		api.POST("/kick-member", a.handleKickMember)
		api.POST("/switch-owner", a.handleSwitchOwner)
		api.POST("/add-member", a.handleAddMember)

		api.POST("/create-invite-link", a.handleCreateInvite)
		api.POST("/join-server-by-link", a.handleRedeemInvite)
		api.POST("/delete-invite-link", a.handleDeleteInvite)

		api.GET("/has-servers", a.handleHasServers)
		api.GET("/user-servers", a.handleUserServers)
		api.GET("/server-channels", a.handleServerChannels)
		api.GET("/server-members", a.handleServerMembers)
		api.GET("/connected-users", a.handleConnectedUsers)
		api.GET("/channel-messages", a.handleChannelMessages)

		api.POST("/message/update", a.handleEditMessage)
		api.POST("/message/delete", a.handleDeleteMessage)

		api.POST("/channel/create", a.handleCreateChannel)
		api.POST("/channel/update", a.handleRenameChannel)
		api.POST("/channel/delete", a.handleDeleteChannel)
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

func queryID(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(400, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError maps engine and store errors to a status code. Anything it
// does not recognise is logged and reported as 500.
func respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, servers.ErrPermissionDenied),
		errors.Is(err, servers.ErrCannotKickOwner):
		c.JSON(403, gin.H{"error": err.Error()})
	case errors.Is(err, servers.ErrInvalidRole),
		errors.Is(err, servers.ErrNotMember),
		errors.Is(err, servers.ErrAlreadyMember),
		errors.Is(err, servers.ErrOwnerCannotLeave),
		errors.Is(err, servers.ErrNothingToUpdate),
		errors.Is(err, servers.ErrEmptyName):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, servers.ErrServerNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	default:
		log.Printf("%s: %v", op, err)
		c.JSON(500, gin.H{"error": "internal error"})
	}
}

func (a *API) handleCurrentUser(c *gin.Context) {
	user, err := a.Auth.Lookup(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "handleCurrentUser", err)
		return
	}
	a.Registry.UserConnected(user.ID)
	c.JSON(200, gin.H{"user": user})
}

func (a *API) handleLogout(c *gin.Context) {
	a.Registry.Leave(currentUserID(c), nil)
	auth.ClearCookie(c)
	c.JSON(200, gin.H{"message": "Logged out"})
}

func (a *API) handleAllUsers(c *gin.Context) {
	users, err := a.Auth.AllUsers(c.Request.Context())
	if err != nil {
		respondError(c, "handleAllUsers", err)
		return
	}
	c.JSON(200, gin.H{"users": users})
}

func (a *API) handleUpdateUsername(c *gin.Context) {
	var json struct {
		Username string `json:"username" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Auth.UpdateUsername(c.Request.Context(), currentUserID(c), json.Username); err != nil {
		respondError(c, "handleUpdateUsername", err)
		return
	}
	c.JSON(200, gin.H{"message": "Username updated"})
}

func (a *API) handleUpdateProfile(c *gin.Context) {
	var json struct {
		Username *string `json:"username"`
		Avatar   *string `json:"avatar"`
	}
	if !bind(c, &json) {
		return
	}
	ctx := c.Request.Context()
	userID := currentUserID(c)
	if json.Username != nil {
		if err := a.Auth.UpdateUsername(ctx, userID, *json.Username); err != nil {
			respondError(c, "handleUpdateProfile", err)
			return
		}
	}
	if json.Avatar != nil {
		if err := a.Auth.UpdateAvatar(ctx, userID, *json.Avatar); err != nil {
			respondError(c, "handleUpdateProfile", err)
			return
		}
	}
	c.JSON(200, gin.H{"message": "Profile updated"})
}

func (a *API) handleHasServers(c *gin.Context) {
	has, err := a.Engine.HasServers(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, "handleHasServers", err)
		return
	}
	c.JSON(200, gin.H{"has_servers": has})
}

func (a *API) handleUserServers(c *gin.Context) {
	userID := currentUserID(c)
	list, err := a.Engine.UserServers(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "handleUserServers", err)
		return
	}
	a.Registry.UserConnected(userID)
	c.JSON(200, gin.H{"servers": list})
}

// requireMember answers 403 and returns false unless the caller belongs to
// serverID.
func (a *API) requireMember(ctx context.Context, c *gin.Context, serverID int64) bool {
	ok, err := a.Engine.CanRead(ctx, currentUserID(c), serverID)
	if err != nil {
		respondError(c, "requireMember", err)
		return false
	}
	if !ok {
		c.JSON(403, gin.H{"error": "not a member of this server"})
		return false
	}
	return true
}

func (a *API) handleServerChannels(c *gin.Context) {
	serverID, ok := queryID(c, "server_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if !a.requireMember(ctx, c, serverID) {
		return
	}
	channels, err := a.Engine.ServerChannels(ctx, serverID)
	if err != nil {
		respondError(c, "handleServerChannels", err)
		return
	}
	c.JSON(200, gin.H{"channels": channels})
}

func (a *API) handleServerMembers(c *gin.Context) {
	serverID, ok := queryID(c, "server_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := currentUserID(c)
	a.Registry.UserConnected(userID)
	if !a.requireMember(ctx, c, serverID) {
		return
	}

	members, err := a.Engine.ServerMembers(ctx, serverID, a.Registry.ConnectedUsers())
	if err != nil {
		respondError(c, "handleServerMembers", err)
		return
	}
	names, err := a.Auth.DisplayNames(ctx, lo.Map(members, func(m types.Member, _ int) int64 { return m.UserID }))
	if err != nil {
		respondError(c, "handleServerMembers", err)
		return
	}
	for i := range members {
		members[i].Username = names[members[i].UserID]
	}
	c.JSON(200, gin.H{"members": members})
}

func (a *API) handleConnectedUsers(c *gin.Context) {
	c.JSON(200, gin.H{"users": a.Registry.ConnectedUsers()})
}

func (a *API) handleChannelMessages(c *gin.Context) {
	channelID, ok := queryID(c, "channel_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	allowed, err := a.Engine.CanReadChannel(ctx, currentUserID(c), channelID)
	if err != nil {
		respondError(c, "handleChannelMessages", err)
		return
	}
	if !allowed {
		c.JSON(403, gin.H{"error": "not a member of this server"})
		return
	}

	msgs, err := a.Engine.ChannelMessages(ctx, channelID)
	if err != nil {
		respondError(c, "handleChannelMessages", err)
		return
	}
	names, err := a.Auth.DisplayNames(ctx, lo.Map(msgs, func(m types.Message, _ int) int64 { return m.UserID }))
	if err != nil {
		respondError(c, "handleChannelMessages", err)
		return
	}
	for i := range msgs {
		msgs[i].Username = names[msgs[i].UserID]
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	c.JSON(200, gin.H{"messages": msgs})
}
