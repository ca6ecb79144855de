package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/hyeonlog/contact-hub/internal/model"
	fieldsSvc "github.com/hyeonlog/contact-hub/internal/service/fields"
)

type fieldResp struct {
	ID          string   `json:"id"`
	APIName     string   `json:"apiName"`
	DisplayName string   `json:"displayName"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Active      bool     `json:"active"`
	Options     []string `json:"options,omitempty"`
}

func toFieldResp(d *model.FieldDefinition) fieldResp {
	return fieldResp{
		ID:          d.ID,
		APIName:     d.APIName,
		DisplayName: d.DisplayName,
		Type:        d.Type.String(),
		Required:    d.Required,
		Active:      d.Active,
		Options:     d.Options,
	}
}

type createFieldReq struct {
	APIName     string   `json:"apiName"`
	DisplayName string   `json:"displayName"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Options     []string `json:"options"`
}

func createFieldHandler(svc *fieldsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createFieldReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		def, err := svc.Create(c.Request().Context(), fieldsSvc.CreateInput{
			APIName:     strings.TrimSpace(req.APIName),
			DisplayName: req.DisplayName,
			Type:        req.Type,
			Required:    req.Required,
			Options:     req.Options,
		})
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
			}

			log.Errorf("create field failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusCreated, toFieldResp(def))
	}
}

func getFieldHandler(svc *fieldsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		def, err := svc.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, fieldsSvc.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "field not found"})
			}

			log.Errorf("get field failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, toFieldResp(def))
	}
}

func listFieldsHandler(svc *fieldsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		defs, err := svc.ListActive(c.Request().Context())
		if err != nil {
			log.Errorf("list fields failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		out := make([]fieldResp, 0, len(defs))
		for _, d := range defs {
			out = append(out, toFieldResp(d))
		}
		return c.JSON(http.StatusOK, map[string]any{"data": out})
	}
}

func deactivateFieldHandler(svc *fieldsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
			if errors.Is(err, fieldsSvc.ErrNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "field not found"})
			}

			log.Errorf("deactivate field failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
