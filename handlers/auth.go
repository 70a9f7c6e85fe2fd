package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"stocks-simulator/database"
	"stocks-simulator/middleware"
	"stocks-simulator/models"
)

type SignupInput struct {
	Name            string `json:"name" binding:"required,min=2"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshInput struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type session struct {
	User         *models.User `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Signup registers an account with the configured starting balance and
// signs it in.
func (h *Handler) Signup(c *gin.Context) {
	var input SignupInput
	if !bindJSON(c, &input) {
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(c, err)
		return
	}

	user := &models.User{
		Name:     strings.TrimSpace(input.Name),
		Email:    input.Email,
		Password: string(hashedPassword),
		Balance:  h.initialBalance,
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}

	s, err := h.issueSession(c, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Str("account", user.ID).Msg("account created")
	ok(c, http.StatusCreated, s)
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginInput
	if !bindJSON(c, &input) {
		return
	}

	user, err := h.users.UserByEmail(c.Request.Context(), input.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		h.invalidCredentials(c)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		h.invalidCredentials(c)
		return
	}

	s, err := h.issueSession(c, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// Refresh exchanges a live refresh token for a new token pair. The old
// refresh token is revoked.
func (h *Handler) Refresh(c *gin.Context) {
	var input RefreshInput
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()

	accountID, err := middleware.ParseToken(h.secret, input.RefreshToken, middleware.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, envelope{Error: "Invalid refresh token"})
		return
	}
	stored, err := h.tokens.Lookup(ctx, input.RefreshToken)
	if errors.Is(err, ErrTokenRevoked) || (err == nil && stored != accountID) {
		c.JSON(http.StatusUnauthorized, envelope{Error: "Refresh token has been revoked"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.tokens.Revoke(ctx, input.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.users.Account(ctx, accountID)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.issueSession(c, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	s.User = nil
	ok(c, http.StatusOK, s)
}

func (h *Handler) issueSession(c *gin.Context, user *models.User) (*session, error) {
	now := h.now()
	access, err := middleware.IssueToken(h.secret, user.ID, middleware.AccessToken, middleware.AccessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh, err := middleware.IssueToken(h.secret, user.ID, middleware.RefreshToken, middleware.RefreshTTL, now)
	if err != nil {
		return nil, err
	}
	if err := h.tokens.Save(c.Request.Context(), refresh, user.ID, middleware.RefreshTTL); err != nil {
		return nil, err
	}
	return &session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (h *Handler) invalidCredentials(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, envelope{Error: "Invalid email or password"})
}
