package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

// NewRoutes builds the v1 route registrar.
func NewRoutes(handlerProvider *handlers.Provider) *Routes {
	return &Routes{handlers: handlerProvider}
}

// Register attaches all v1 routes under the /v1 prefix. Every route in
// the group requires bearer auth.
func (r *Routes) Register(engine *gin.Engine, auth gin.HandlerFunc) {
	group := engine.Group("/v1", auth)

	rooms := group.Group("/rooms")
	rooms.GET("", r.handlers.Rooms.List)
	rooms.POST("", r.handlers.Rooms.Create)
	rooms.POST("/direct", r.handlers.Rooms.ResolveDirect)
	rooms.GET("/:id", r.handlers.Rooms.Get)
	rooms.PATCH("/:id", r.handlers.Rooms.Rename)
	rooms.GET("/:id/members", r.handlers.Rooms.Members)
	rooms.POST("/:id/members", r.handlers.Rooms.AddMember)
	rooms.DELETE("/:id/members/:userID", r.handlers.Rooms.RemoveMember)
	rooms.GET("/:id/messages", r.handlers.Messages.ListAfter)

	users := group.Group("/users")
	users.GET("", r.handlers.Users.List)
	users.GET("/me", r.handlers.Users.Me)
	users.PATCH("/me/status", r.handlers.Users.UpdateStatus)
}
