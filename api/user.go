package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/gundam-live/internal/token"
	"github.com/katatrina/gundam-live/internal/util"
	"github.com/rs/zerolog/log"
)

type loginUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginUserResponse struct {
	User                 User      `json:"user"`
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
}

func (server *Server) loginUser(ctx *gin.Context) {
	req := new(loginUserRequest)

	if err := ctx.ShouldBindJSON(req); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}

	user, ok := server.store.GetUserByEmail(req.Email)
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse(ErrEmailNotFound))
		return
	}

	if err := util.CheckPassword(req.Password, user.HashedPassword); err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(ErrIncorrectPass))
		return
	}

	accessToken, accessPayload, err := server.tokenMaker.CreateToken(user.ID, user.Role, server.config.AccessTokenDuration)
	if err != nil {
		log.Err(err).Msg("failed to create access token")
		ctx.JSON(http.StatusInternalServerError, errorResponse(ErrInternalServer))
		return
	}

	resp := loginUserResponse{
		AccessToken:          accessToken,
		AccessTokenExpiresAt: accessPayload.ExpiresAt.Time,
		User:                 user,
	}
	ctx.JSON(http.StatusOK, resp)
}

func (server *Server) getMe(ctx *gin.Context) {
	authPayload := ctx.MustGet(authorizationPayloadKey).(*token.Payload)

	user, ok := server.store.GetUserByID(authPayload.Subject)
	if !ok {
		ctx.JSON(http.StatusNotFound, errorResponse(ErrUserNotFound))
		return
	}

	ctx.JSON(http.StatusOK, user)
}
