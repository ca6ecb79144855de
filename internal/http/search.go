package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/hyeonlog/contact-hub/internal/model"
	contactsSvc "github.com/hyeonlog/contact-hub/internal/service/contacts"
)

// searchContactsHandler answers GET /v1/contacts/search.
//
// Query parameters:
//   - engine: "es" (default) or "mysql"
//   - keyword: substring match on email, name and text custom fields
//   - filter[field]=v or filter[field][op]=v; between takes "lo,hi"
//   - sort[field]=asc|desc
//   - groupBy: field to bucket counts by
//   - page, pageSize
func searchContactsHandler(svc *contactsSvc.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		spec, err := parseQuerySpec(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}

		result, err := svc.Search(c.Request().Context(), c.QueryParam("engine"), spec)
		if err != nil {
			var verr *model.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
			case errors.Is(err, contactsSvc.ErrUnknownEngine):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}

			log.Errorf("search failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, result)
	}
}

func parseQuerySpec(c echo.Context) (model.QuerySpec, error) {
	spec := model.QuerySpec{
		Keyword: strings.TrimSpace(c.QueryParam("keyword")),
		GroupBy: strings.TrimSpace(c.QueryParam("groupBy")),
	}
	if v := c.QueryParam("page"); v != "" {
		spec.Page, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("pageSize"); v != "" {
		spec.PageSize, _ = strconv.Atoi(v)
	}

	for key, vals := range c.QueryParams() {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]

		switch {
		case strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]"):
			field, opName, ok := splitBracketKey(key[len("filter["):len(key)-1])
			if !ok {
				return spec, &model.ValidationError{Field: key, Reason: "malformed filter parameter"}
			}
			op, ok := model.ParseOperator(opName)
			if !ok {
				return spec, &model.ValidationError{Field: field, Reason: "unknown operator " + strconv.Quote(opName)}
			}

			f := model.Filter{Field: field, Op: op, Value: val}
			if op == model.OpBetween {
				lo, hi, ok := strings.Cut(val, ",")
				if !ok {
					return spec, &model.ValidationError{Field: field, Reason: "between requires two comma-separated values"}
				}
				f.Value = strings.TrimSpace(lo)
				f.Value2 = strings.TrimSpace(hi)
			}
			spec.Filters = append(spec.Filters, f)

		case strings.HasPrefix(key, "sort[") && strings.HasSuffix(key, "]"):
			field := key[len("sort[") : len(key)-1]
			dir := strings.ToLower(strings.TrimSpace(val))
			if dir != "asc" && dir != "desc" {
				return spec, &model.ValidationError{Field: field, Reason: "sort direction must be asc or desc"}
			}
			spec.Sort = append(spec.Sort, model.SortKey{Field: field, Desc: dir == "desc"})
		}
	}

	return spec, nil
}

// splitBracketKey splits "tier__c][gte" into ("tier__c", "gte"). A key with
// no operator segment means eq.
func splitBracketKey(inner string) (field, op string, ok bool) {
	if i := strings.Index(inner, "]["); i >= 0 {
		field, op = inner[:i], inner[i+2:]
		return field, op, field != "" && op != ""
	}
	if strings.ContainsAny(inner, "[]") {
		return "", "", false
	}
	return inner, "", inner != ""
}
