package routes

import (
	"github.com/gin-gonic/gin"
)

type serverRequest struct {
	ServerID int64 `json:"server_id" binding:"required"`
}

type memberRequest struct {
	ServerID int64 `json:"server_id" binding:"required"`
	UserID   int64 `json:"user_id" binding:"required"`
}

func (a *API) handleCreateServer(c *gin.Context) {
	var json struct {
		Name  string `json:"name" binding:"required"`
		Image string `json:"image"`
	}
	if !bind(c, &json) {
		return
	}
	srv, err := a.Engine.CreateServer(c.Request.Context(), currentUserID(c), json.Name, json.Image)
	if err != nil {
		respondError(c, "handleCreateServer", err)
		return
	}
	c.JSON(201, gin.H{"server": srv})
}

func (a *API) handleJoinServer(c *gin.Context) {
	var json serverRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.JoinServer(c.Request.Context(), currentUserID(c), json.ServerID); err != nil {
		respondError(c, "handleJoinServer", err)
		return
	}
	c.JSON(200, gin.H{"message": "Joined server"})
}

func (a *API) handleDeleteServer(c *gin.Context) {
	var json serverRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.DeleteServer(c.Request.Context(), currentUserID(c), json.ServerID); err != nil {
		respondError(c, "handleDeleteServer", err)
		return
	}
	c.JSON(200, gin.H{"message": "Server deleted"})
}

func (a *API) handleUpdateServer(c *gin.Context) {
	var json struct {
		ServerID int64   `json:"server_id" binding:"required"`
		Name     *string `json:"name"`
		Image    *string `json:"image"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.UpdateServer(c.Request.Context(), currentUserID(c), json.ServerID, json.Name, json.Image); err != nil {
		respondError(c, "handleUpdateServer", err)
		return
	}
	c.JSON(200, gin.H{"message": "Server updated"})
}

func (a *API) handleLeaveServer(c *gin.Context) {
	var json serverRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.LeaveServer(c.Request.Context(), currentUserID(c), json.ServerID); err != nil {
		respondError(c, "handleLeaveServer", err)
		return
	}
	c.JSON(200, gin.H{"message": "Left server"})
}

func (a *API) handleUpdateMemberRole(c *gin.Context) {
	var json struct {
		ServerID int64  `json:"server_id" binding:"required"`
		UserID   int64  `json:"user_id" binding:"required"`
		Role     string `json:"role" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	err := a.Engine.UpdateMemberRole(c.Request.Context(), currentUserID(c), json.ServerID, json.UserID, json.Role)
	if err != nil {
		respondError(c, "handleUpdateMemberRole", err)
		return
	}
	c.JSON(200, gin.H{"message": "Role updated"})
}

func (a *API) handleKickMember(c *gin.Context) {
	var json memberRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.KickMember(c.Request.Context(), currentUserID(c), json.ServerID, json.UserID); err != nil {
		respondError(c, "handleKickMember", err)
		return
	}
	c.JSON(200, gin.H{"message": "Member kicked"})
}

func (a *API) handleSwitchOwner(c *gin.Context) {
	var json memberRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.TransferOwnership(c.Request.Context(), currentUserID(c), json.ServerID, json.UserID); err != nil {
		respondError(c, "handleSwitchOwner", err)
		return
	}
	c.JSON(200, gin.H{"message": "Ownership transferred"})
}

func (a *API) handleAddMember(c *gin.Context) {
	var json memberRequest
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.AddMember(c.Request.Context(), json.ServerID, json.UserID); err != nil {
		respondError(c, "handleAddMember", err)
		return
	}
	c.JSON(200, gin.H{"message": "Member added"})
}

func (a *API) handleCreateInvite(c *gin.Context) {
	var json serverRequest
	if !bind(c, &json) {
		return
	}
	code, err := a.Engine.CreateInvite(c.Request.Context(), currentUserID(c), json.ServerID)
	if err != nil {
		respondError(c, "handleCreateInvite", err)
		return
	}
	if code == "" {
		c.JSON(403, gin.H{"error": "only the owner or an admin can create invites"})
		return
	}
	c.JSON(201, gin.H{"code": code})
}

func (a *API) handleRedeemInvite(c *gin.Context) {
	var json struct {
		Code string `json:"code" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.RedeemInvite(c.Request.Context(), currentUserID(c), json.Code); err != nil {
		respondError(c, "handleRedeemInvite", err)
		return
	}
	c.JSON(200, gin.H{"message": "Invite processed"})
}

func (a *API) handleDeleteInvite(c *gin.Context) {
	var json struct {
		Code string `json:"code" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.DeleteInvite(c.Request.Context(), json.Code); err != nil {
		respondError(c, "handleDeleteInvite", err)
		return
	}
	c.JSON(200, gin.H{"message": "Invite deleted"})
}
