package handler

import (
	"context"
	"time"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/Automobile-System/backend-sub001/internal/validation"
	"github.com/Automobile-System/backend-sub001/pkg/constant"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	auth *service.AuthService
	cfg  *config.Config
}

func NewAuthHandler(auth *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, cfg: cfg}
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return &apperrors.ValidationError{Message: "invalid request body"}
	}
	return validation.Struct(out)
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := bind(c, &input); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := bind(c, &input); err != nil {
		return err
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	resp, err := h.auth.Login(c.UserContext(), input)
	if err != nil {
		return err
	}

	h.setAccessCookie(c, resp.AccessToken, resp.ExpiresIn)
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := bind(c, &input); err != nil {
		return err
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	resp, err := h.auth.Refresh(c.UserContext(), input)
	if err != nil {
		return err
	}

	h.setAccessCookie(c, resp.AccessToken, resp.ExpiresIn)
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := bind(c, &input); err != nil {
		return err
	}

	if err := h.auth.Logout(c.UserContext(), input); err != nil {
		return err
	}

	h.clearAccessCookie(c)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return apperrors.ErrUnauthenticated
	}

	user, err := h.auth.GetUser(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	p, ok := principal(c)
	if !ok {
		return apperrors.ErrUnauthenticated
	}

	sessions, err := h.auth.ListSessions(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (h *AuthHandler) GetAllUsers(c *fiber.Ctx) error {
	users, err := h.auth.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(users)
}

func (h *AuthHandler) UpdateUserRoles(c *fiber.Ctx) error {
	var input dto.UpdateRolesInput
	if err := bind(c, &input); err != nil {
		return err
	}

	user, err := h.auth.UpdateUserRoles(c.UserContext(), c.Params("id"), input.Roles)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (h *AuthHandler) UnlockUser(c *fiber.Ctx) error {
	if err := h.auth.UnlockAccount(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "account unlocked"})
}

func (h *AuthHandler) ForceLogout(c *fiber.Ctx) error {
	revoked, err := h.auth.ForceLogoutByUserID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "all sessions revoked", "revoked": revoked})
}

func (h *AuthHandler) LoginAttempts(c *fiber.Ctx) error {
	attempts, err := h.auth.ListLoginAttempts(c.UserContext(), c.Query("email"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(attempts)
}

func (h *AuthHandler) setAccessCookie(c *fiber.Ctx, token string, expiresIn int64) {
	c.Cookie(&fiber.Cookie{
		Name:     constant.AccessTokenCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Now().Add(time.Duration(expiresIn) * time.Second),
		Secure:   h.cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAccessCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     constant.AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func Health(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
