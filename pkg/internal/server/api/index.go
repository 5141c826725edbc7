package api

import (
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Handlers carries the collaborators the HTTP handlers work with.
type Handlers struct {
	Uploader   *services.Uploader
	Repository services.Repository
	Settings   services.SettingsStore
	Storage    *services.LocalStorage
	Metadata   *services.MetadataCache

	// Replicas and Replicator are nil when replication is disabled.
	Replicas   services.ReplicaRepository
	Replicator *services.Replicator
}

func MapAPIs(app *fiber.App, baseURL string, h *Handlers) {
	api := app.Group(baseURL).Name("API")
	{
		tickets := api.Group("/tickets/:ticket").Name("Tickets API")
		{
			tickets.Get("/attachments", h.listTicketAttachments)
			tickets.Post("/attachments", h.createAttachment)
		}

		attachments := api.Group("/attachments").Name("Attachments API")
		{
			attachments.Get("/:id/meta", h.getAttachmentMeta)
			attachments.Get("/:id/replicas", h.listAttachmentReplicas)
			attachments.Get("/:id", h.openAttachment)
			attachments.Delete("/:id", h.deleteAttachment)
		}

		api.Get("/quarantine", h.listQuarantine)

		settings := api.Group("/settings").Name("Settings API")
		{
			settings.Get("/uploads", h.getUploadSettings)
			settings.Put("/uploads", h.updateUploadSettings)
		}
	}

	app.Get("/.well-known", getMetadata)
}
