package api

import (
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/server/exts"
	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handlers) getUploadSettings(c *fiber.Ctx) error {
	if _, err := exts.EnsureGrantedPerm(c, services.PermManageSettings); err != nil {
		return err
	}

	return c.JSON(services.LoadUploadPolicy(c.UserContext(), h.Settings))
}

func (h *Handlers) updateUploadSettings(c *fiber.Ctx) error {
	if _, err := exts.EnsureGrantedPerm(c, services.PermManageSettings); err != nil {
		return err
	}

	var data struct {
		MaxFileSizeMB     *int64   `json:"max_file_size_mb" validate:"omitempty,min=1,max=10240"`
		AllowedFileTypes  []string `json:"allowed_file_types" validate:"omitempty,min=1,dive,min=1,max=16,alphanum"`
		SanitizeFileNames *bool    `json:"sanitize_file_names"`
		ScanEnabled       *bool    `json:"scan_enabled"`
		ScanMagicBytes    *bool    `json:"scan_magic_bytes"`
		ScanVirus         *bool    `json:"scan_virus"`
		QuarantineEnabled *bool    `json:"quarantine_enabled"`
		AutoQuarantine    *bool    `json:"auto_quarantine_on_scan_failure"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	changes := map[string]any{}
	if data.MaxFileSizeMB != nil {
		changes[services.SettingMaxFileSize] = *data.MaxFileSizeMB
	}
	if data.AllowedFileTypes != nil {
		changes[services.SettingAllowedFileTypes] = services.NormalizeExtensions(data.AllowedFileTypes)
	}
	flags := map[string]*bool{
		services.SettingSanitizeNames:     data.SanitizeFileNames,
		services.SettingScanEnabled:       data.ScanEnabled,
		services.SettingScanMagicBytes:    data.ScanMagicBytes,
		services.SettingScanVirus:         data.ScanVirus,
		services.SettingQuarantineEnabled: data.QuarantineEnabled,
		services.SettingAutoQuarantine:    data.AutoQuarantine,
	}
	for key, val := range flags {
		if val != nil {
			changes[key] = *val
		}
	}

	for key, val := range changes {
		if err := h.Settings.SetSetting(c.UserContext(), key, val); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(services.LoadUploadPolicy(c.UserContext(), h.Settings))
}
