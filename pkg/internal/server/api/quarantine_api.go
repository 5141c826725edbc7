package api

import (
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server/exts"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handlers) listQuarantine(c *fiber.Ctx) error {
	if _, err := exts.EnsureGrantedPerm(c, services.PermManageQuarantine); err != nil {
		return err
	}

	take := c.QueryInt("take", 10)
	offset := c.QueryInt("offset", 0)
	if take > 100 {
		take = 100
	}

	records, count, err := h.Repository.ListQuarantine(c.UserContext(), take, offset)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": count,
		"data":  records,
	})
}
