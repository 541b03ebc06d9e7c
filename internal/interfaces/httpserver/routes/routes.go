// Package routes registers the versioned REST routes.
package routes

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/xtendplex/chat-server/internal/interfaces/httpserver/routes/v1"
)

// Provider aggregates versioned route registrars.
type Provider struct {
	v1 *v1.Routes
}

// NewProvider builds the route provider.
func NewProvider(v1Routes *v1.Routes) *Provider {
	return &Provider{v1: v1Routes}
}

// Register attaches all route groups to the engine.
func (p *Provider) Register(engine *gin.Engine, auth gin.HandlerFunc) {
	p.v1.Register(engine, auth)
}
