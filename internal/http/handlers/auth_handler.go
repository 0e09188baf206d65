package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/wanotify/backend/internal/auth"
	"github.com/wanotify/backend/internal/config"
	"github.com/wanotify/backend/internal/http/dto"
	"github.com/wanotify/backend/internal/repositories"
	"go.uber.org/zap"
)

type AuthHandler struct {
	userRepo *repositories.UserRepo
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthHandler(userRepo *repositories.UserRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, cfg: cfg, log: log}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "solicitud inválida"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "email y contraseña son requeridos"})
	}

	user, err := h.userRepo.GetByEmail(c.Context(), req.Email)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Credenciales inválidas"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.Email, user.PlanType, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("token generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "Error interno del servidor"})
	}

	return c.JSON(dto.LoginResponse{Success: true, Token: token, User: user})
}
