package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/lead-call-scheduler/internal/repository"
	timespec "github.com/acme/lead-call-scheduler/internal/schedule"
	apperrors "github.com/acme/lead-call-scheduler/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var parseErr *timespec.ParseError
	if errors.As(err, &parseErr) {
		return fiber.NewError(http.StatusBadRequest, "delay could not be resolved: "+parseErr.Reason)
	}

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrConflict) || errors.Is(err, repository.ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrCollaborator):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, apperrors.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
