package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"pos-backend/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:      fiber.StatusUnprocessableEntity,
	apperr.KindNotFound:        fiber.StatusNotFound,
	apperr.KindPermission:      fiber.StatusForbidden,
	apperr.KindConflict:        fiber.StatusConflict,
	apperr.KindOverpayment:     fiber.StatusBadRequest,
	apperr.KindInvalidQuantity: fiber.StatusBadRequest,
	apperr.KindState:           fiber.StatusConflict,
}

// ErrorHandler maps domain error kinds, validator errors and fiber errors to
// JSON responses. Anything unrecognized logs and becomes a sanitized 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status, ok := kindStatus[ae.Kind]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		body := fiber.Map{"success": false, "error": ae.Message}
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
		return c.Status(status).JSON(body)
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   "validation failed",
			"fields":  fields,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"success": false, "error": fe.Message})
	}

	logrus.WithError(err).WithField("path", c.Path()).Error("unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "internal server error",
	})
}
