package http

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	authErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

type Handler struct {
	svc         service.Service
	v           *validator.Validate
	log         *zap.Logger
	exposeCodes bool
}

func NewHandler(svc service.Service, v *validator.Validate, log *zap.Logger, exposeCodes bool) *Handler {
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, v: v, log: log, exposeCodes: exposeCodes}
}

func (h *Handler) Routes(r gin.IRouter) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.GET("/me", h.currentUser)
	r.POST("/password/reset", h.startResetPassword)
	r.POST("/password/reset/complete", h.completeResetPassword)
	r.POST("/email/change", h.startChangeEmail)
	r.POST("/email/change/complete", h.completeChangeEmail)
	r.POST("/email/validate", h.validateEmail)
}

func (h *Handler) register(c *gin.Context) {
	var body dto.RegisterDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/register", zap.String("user", digest(body.Email)))

	res, err := h.svc.Register(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ServerResponse{Status: res.Response()})
}

func (h *Handler) login(c *gin.Context) {
	var body dto.LoginDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/login", zap.String("user", digest(body.Email)))

	res, err := h.svc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.session(c, res)
}

func (h *Handler) currentUser(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		token = c.Query("jwt")
	}

	res, err := h.svc.GetCurrentUser(c.Request.Context(), token)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.session(c, res)
}

func (h *Handler) startResetPassword(c *gin.Context) {
	var body dto.StartResetPasswordDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/password/reset", zap.String("user", digest(body.Email)))

	res, err := h.svc.StartResetPassword(c.Request.Context(), body.Email)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.code(c, res)
}

func (h *Handler) completeResetPassword(c *gin.Context) {
	var body dto.CompleteResetPasswordDTO
	if !h.bind(c, &body) {
		return
	}

	res, err := h.svc.CompleteResetPassword(c.Request.Context(), body.Email, body.Validation, body.Password)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ServerResponse{Status: res.Response()})
}

func (h *Handler) startChangeEmail(c *gin.Context) {
	var body dto.StartChangeEmailDTO
	if !h.bind(c, &body) {
		return
	}
	h.log.Info("/email/change", zap.String("user", digest(body.Email)))

	res, err := h.svc.StartChangeEmail(c.Request.Context(), body.Email)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.code(c, res)
}

func (h *Handler) completeChangeEmail(c *gin.Context) {
	var body dto.CompleteChangeEmailDTO
	if !h.bind(c, &body) {
		return
	}
	token := body.JWT
	if token == "" {
		token = bearerToken(c)
	}

	res, err := h.svc.CompleteChangeEmail(c.Request.Context(), token, body.Email, body.Validation)
	if err != nil {
		h.handleError(c, err)
		return
	}
	status := http.StatusOK
	if res == model.BadToken || res == model.ExpiredToken {
		status = http.StatusUnauthorized
	}
	c.JSON(status, ServerResponse{Status: res.Response()})
}

func (h *Handler) validateEmail(c *gin.Context) {
	var body dto.ValidateEmailDTO
	if !h.bind(c, &body) {
		return
	}

	res, err := h.svc.ValidateEmail(c.Request.Context(), body.Email, body.Validation)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ServerResponse{Status: res.Response()})
}

// session answers Login and GetCurrentUser. Anything but Ok is a 401.
func (h *Handler) session(c *gin.Context, res model.SessionResult) {
	if res.Code != model.Ok {
		c.JSON(http.StatusUnauthorized, ServerResponse{Status: res.Code.Response()})
		return
	}
	c.Header("Authorization", bearerPrefix+res.Token)
	c.JSON(http.StatusOK, ServerResponse{
		Status: model.ResponseOk,
		Token:  res.Token,
		Data:   res.User,
	})
}

func (h *Handler) code(c *gin.Context, res model.CodeResult) {
	if res.Code != model.Ok {
		c.JSON(http.StatusOK, ServerResponse{Status: res.Code.Response()})
		return
	}
	data := codeData{Expires: res.ExpiresAt}
	if h.exposeCodes {
		data.Validation = res.Secret
	}
	c.JSON(http.StatusOK, ServerResponse{Status: model.ResponseOk, Data: data})
}

func (h *Handler) bind(c *gin.Context, body any) bool {
	if err := c.ShouldBind(body); err != nil {
		c.JSON(http.StatusBadRequest, ServerResponse{Status: model.ResponseInvalid, Message: err.Error()})
		return false
	}
	if err := h.v.Struct(body); err != nil {
		c.JSON(http.StatusBadRequest, ServerResponse{Status: model.ResponseInvalid, Message: err.Error()})
		return false
	}
	return true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case authErrors.IsInvalidArgument(err):
		c.JSON(http.StatusBadRequest, ServerResponse{Status: model.ResponseInvalid, Message: err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ServerResponse{Status: model.ResponseError, Message: "internal server error"})
	}
}

func bearerToken(c *gin.Context) string {
	raw := c.GetHeader("Authorization")
	if len(raw) > len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return ""
}

func digest(email string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(email)))
}
