package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/hyeonlog/contact-hub/internal/model"
	contactsSvc "github.com/hyeonlog/contact-hub/internal/service/contacts"
)

type contactResp struct {
	model.Document
}

func toContactResp(c *model.Contact) contactResp {
	return contactResp{Document: c.Document()}
}

type createContactReq struct {
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	CustomFields map[string]any `json:"customFields"`
}

func createContactHandler(svc *contactsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createContactReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Email = strings.TrimSpace(req.Email)
		req.Name = strings.TrimSpace(req.Name)
		if req.Email == "" || req.Name == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and name are required"})
		}

		contact, err := svc.Create(c.Request().Context(), contactsSvc.CreateInput{
			Email:        req.Email,
			Name:         req.Name,
			CustomFields: req.CustomFields,
		})
		if err != nil {
			return writeContactErr(c, err)
		}
		return c.JSON(http.StatusCreated, toContactResp(contact))
	}
}

func getContactHandler(svc *contactsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		contact, err := svc.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeContactErr(c, err)
		}
		return c.JSON(http.StatusOK, toContactResp(contact))
	}
}

type updateContactReq struct {
	Name         *string        `json:"name"`
	CustomFields map[string]any `json:"customFields"`
}

func updateContactHandler(svc *contactsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updateContactReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		contact, err := svc.Update(c.Request().Context(), c.Param("id"), contactsSvc.UpdateInput{
			Name:         req.Name,
			CustomFields: req.CustomFields,
		})
		if err != nil {
			return writeContactErr(c, err)
		}
		return c.JSON(http.StatusOK, toContactResp(contact))
	}
}

func deleteContactHandler(svc *contactsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
			return writeContactErr(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func writeContactErr(c echo.Context, err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, contactsSvc.ErrDuplicateEmail):
		return c.JSON(http.StatusConflict, map[string]string{"error": "email already exists"})
	case errors.Is(err, contactsSvc.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "contact not found"})
	case errors.Is(err, contactsSvc.ErrUnknownEngine):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	log.Errorf("contact request failed: %v", err)

	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
