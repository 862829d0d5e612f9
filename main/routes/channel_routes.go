package routes

import (
	"github.com/gin-gonic/gin"
)

func (a *API) handleCreateChannel(c *gin.Context) {
	var json struct {
		ServerID int64  `json:"server_id" binding:"required"`
		Name     string `json:"name" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	ch, err := a.Engine.CreateChannel(c.Request.Context(), currentUserID(c), json.ServerID, json.Name)
	if err != nil {
		respondError(c, "handleCreateChannel", err)
		return
	}
	if ch == nil {
		c.JSON(403, gin.H{"error": "only the owner or an admin can create channels"})
		return
	}
	c.JSON(201, gin.H{"channel": ch})
}

func (a *API) handleRenameChannel(c *gin.Context) {
	var json struct {
		ChannelID int64  `json:"channel_id" binding:"required"`
		Name      string `json:"name" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.RenameChannel(c.Request.Context(), currentUserID(c), json.ChannelID, json.Name); err != nil {
		respondError(c, "handleRenameChannel", err)
		return
	}
	c.JSON(200, gin.H{"message": "Channel updated"})
}

func (a *API) handleDeleteChannel(c *gin.Context) {
	var json struct {
		ChannelID int64 `json:"channel_id" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.DeleteChannel(c.Request.Context(), currentUserID(c), json.ChannelID); err != nil {
		respondError(c, "handleDeleteChannel", err)
		return
	}
	c.JSON(200, gin.H{"message": "Channel deleted"})
}

func (a *API) handleEditMessage(c *gin.Context) {
	var json struct {
		MessageID int64  `json:"message_id" binding:"required"`
		Content   string `json:"content" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.EditMessage(c.Request.Context(), currentUserID(c), json.MessageID, json.Content); err != nil {
		respondError(c, "handleEditMessage", err)
		return
	}
	c.JSON(200, gin.H{"message": "Message updated"})
}

func (a *API) handleDeleteMessage(c *gin.Context) {
	var json struct {
		MessageID int64 `json:"message_id" binding:"required"`
	}
	if !bind(c, &json) {
		return
	}
	if err := a.Engine.DeleteMessage(c.Request.Context(), currentUserID(c), json.MessageID); err != nil {
		respondError(c, "handleDeleteMessage", err)
		return
	}
	c.JSON(200, gin.H{"message": "Message deleted"})
}
