package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

type errorResponse struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	c.JSON(apperrors.HTTPStatus(kind), errorResponse{
		Type:  apperrors.TypeString(kind),
		Error: err.Error(),
	})
}
