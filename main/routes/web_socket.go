package routes

import (
	"fluxy/auth"
	"fluxy/chatroom"

	"github.com/gin-gonic/gin"
)

func SetupWebSocketRoutes(r *gin.Engine, provider *auth.Provider, socket *chatroom.Handler) {
	r.GET("/ws", provider.Middleware(), socket.HandleSocket)
}
