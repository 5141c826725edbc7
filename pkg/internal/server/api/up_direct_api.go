package api

import (
	"context"
	"errors"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server/exts"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const settingsLookupTimeout = 5 * time.Second

func (h *Handlers) createAttachment(c *fiber.Ctx) error {
	claims, err := exts.EnsureGrantedPerm(c, services.PermCreateAttachments)
	if err != nil {
		return err
	}

	ticketID, err := c.ParamsInt("ticket", 0)
	if err != nil || ticketID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid ticket id")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file field")
	}

	mimetype := c.FormValue("mimetype")
	if len(mimetype) == 0 {
		mimetype = file.Header.Get(fiber.HeaderContentType)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), settingsLookupTimeout)
	policy := services.LoadUploadPolicy(ctx, h.Settings)
	cancel()

	req := services.UploadRequest{
		Caller:           exts.GetCaller(c, claims),
		TicketID:         uint(ticketID),
		OriginalName:     file.Filename,
		DeclaredMimeType: mimetype,
		SizeBytes:        file.Size,
	}

	body, err := file.Open()
	if err != nil {
		log.Warn().Err(err).Str("file", file.Filename).Msg("Unable to open uploaded file...")
		h.Uploader.RecordFailure(c.UserContext(), req, "unable to read uploaded file")
		return fiber.NewError(fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer body.Close()
	req.Body = body

	attachment, err := h.Uploader.Upload(c.UserContext(), policy, req)
	if err != nil {
		return mapUploadError(err)
	}

	return c.JSON(attachment)
}

func mapUploadError(err error) error {
	if rejection, ok := services.AsRejection(err); ok {
		switch rejection.Kind {
		case services.RejectFileTooLarge:
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, rejection.Message)
		case services.RejectUnsupportedFileType:
			return fiber.NewError(fiber.StatusUnsupportedMediaType, rejection.Message)
		case services.RejectTicketNotFound:
			return fiber.NewError(fiber.StatusNotFound, rejection.Message)
		case services.RejectFileRejected:
			return fiber.NewError(fiber.StatusUnprocessableEntity, rejection.Message)
		}
	}

	if errors.Is(err, context.Canceled) {
		return fiber.NewError(fiber.StatusRequestTimeout, "upload was cancelled")
	}

	log.Error().Err(err).Msg("An error occurred when processing upload...")
	return fiber.NewError(fiber.StatusInternalServerError, "unable to process upload")
}
