package api

import (
	pkg "git.solsynth.dev/hypernet/helpdesk/pkg/internal"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/viper"
)

func getMetadata(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    viper.GetString("name"),
		"domain":  viper.GetString("domain"),
		"version": pkg.AppVersion,
		"components": fiber.Map{
			"virus_scanner": len(viper.GetString("scanner.clamd")) > 0,
			"replicas":      viper.GetBool("replicas.enabled"),
		},
	})
}
