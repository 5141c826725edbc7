package api

import (
	"errors"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server/exts"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, message)
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

func (h *Handlers) listTicketAttachments(c *fiber.Ctx) error {
	if _, err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}

	ticketID, err := c.ParamsInt("ticket", 0)
	if err != nil || ticketID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid ticket id")
	}

	take := c.QueryInt("take", 10)
	offset := c.QueryInt("offset", 0)
	if take > 100 {
		take = 100
	}

	attachments, count, err := h.Repository.ListAttachments(c.UserContext(), uint(ticketID), take, offset)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"count": count,
		"data":  attachments,
	})
}

func (h *Handlers) getAttachmentMeta(c *fiber.Ctx) error {
	if _, err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	id, _ := c.ParamsInt("id", 0)

	attachment, err := services.GetAttachment(c.UserContext(), h.Repository, h.Metadata, uint(id))
	if err != nil {
		return notFoundOr(err, "attachment not found")
	}

	return c.JSON(attachment)
}

func (h *Handlers) openAttachment(c *fiber.Ctx) error {
	if _, err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	id, _ := c.ParamsInt("id", 0)

	attachment, fp, err := services.OpenAttachment(c.UserContext(), h.Repository, h.Storage, uint(id))
	if err != nil {
		if errors.Is(err, services.ErrQuarantined) {
			return fiber.NewError(fiber.StatusForbidden, "attachment is quarantined")
		} else if errors.Is(err, services.ErrOutsideRoot) {
			log.Warn().Uint("attachment", attachment.ID).Msg("Refused to serve attachment outside the uploads root...")
			return fiber.NewError(fiber.StatusForbidden, "attachment is not accessible")
		}
		return notFoundOr(err, "attachment not found")
	}

	if c.QueryBool("replica", false) && h.Replicator != nil {
		if url, err := h.Replicator.PresignReplica(c.UserContext(), attachment); err == nil {
			return c.Redirect(url, fiber.StatusFound)
		}
	}

	c.Set(fiber.HeaderContentType, attachment.MimeType)
	c.Attachment(attachment.SanitizedFileName)
	return c.SendFile(fp)
}

func (h *Handlers) deleteAttachment(c *fiber.Ctx) error {
	claims, err := exts.EnsureAuthenticated(c)
	if err != nil {
		return err
	}
	id, _ := c.ParamsInt("id", 0)

	attachment, err := h.Repository.FindAttachment(c.UserContext(), uint(id))
	if err != nil {
		return notFoundOr(err, "attachment not found")
	}

	caller := exts.GetCaller(c, claims)
	if attachment.UploadedByID != caller.UserID && !claims.HasPerm(services.PermDeleteAttachments) {
		return fiber.NewError(fiber.StatusForbidden, "you are not permitted to delete this attachment")
	}

	if err := h.Uploader.Delete(c.UserContext(), attachment, caller); err != nil {
		return notFoundOr(err, "attachment not found")
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *Handlers) listAttachmentReplicas(c *fiber.Ctx) error {
	if _, err := exts.EnsureAuthenticated(c); err != nil {
		return err
	}
	id, _ := c.ParamsInt("id", 0)

	if h.Replicas == nil {
		return c.JSON([]models.AttachmentReplica{})
	}

	replicas, err := h.Replicas.ListReplicas(c.UserContext(), uint(id))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(replicas)
}
