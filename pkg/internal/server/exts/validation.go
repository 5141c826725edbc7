package exts

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

var validation = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BindAndValidate parses the request body into out and validates it. The
// returned message only names the json fields that failed.
func BindAndValidate(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	err := validation.Struct(out)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	problems := lo.Map(fields, func(item validator.FieldError, _ int) string {
		return fmt.Sprintf("%s failed on %s", item.Field(), item.Tag())
	})
	return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid request: %s", strings.Join(problems, ", ")))
}
