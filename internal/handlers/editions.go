// editions.go
//
// Cursor-paginated edition listing. Cursors are opaque comma-joined key
// tuples; a fixed id-ordered key keeps pages stable while editions are being
// written concurrently.

package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/queries"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/ThomasJones4/publishing-api/internal/utils"
)

// EditionsHandler handles the edition listing routes
type EditionsHandler struct {
	DB *gorm.DB
}

// PageLink is one pagination cursor reference in a listing response.
type PageLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// EditionsPage is the listing response body.
type EditionsPage struct {
	Results []map[string]interface{} `json:"results"`
	Links   []PageLink               `json:"links"`
}

// GetEditions handles GET /v2/editions
// @Summary List editions
// @Description Keyset-paginated listing of editions across all documents
// @Tags Editions
// @Produce json
// @Param states query string false "Comma-separated lifecycle states to include"
// @Param order query string false "asc or desc, default asc"
// @Param per_page query int false "Page size, default 100"
// @Param before query string false "Cursor: return the page before this key"
// @Param after query string false "Cursor: return the page after this key"
// @Success 200 {object} EditionsPage
// @Failure 422 {object} map[string]interface{}
// @Router /v2/editions [get]
func (h *EditionsHandler) GetEditions(c *fiber.Ctx) error {
	client := queries.EditionsClient{
		DB:     h.DB,
		States: splitParam(c.Query("states")),
	}

	perPage, _ := strconv.Atoi(c.Query("per_page"))
	order := c.Query("order", queries.Ascending)

	pagination, err := queries.NewKeysetPagination(
		client,
		queries.EditionsKey,
		order,
		perPage,
		splitParam(c.Query("before")),
		splitParam(c.Query("after")),
	)
	if err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"pagination": err.Error(),
		}))
	}

	results, err := pagination.Call()
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	links := []PageLink{{Href: c.OriginalURL(), Rel: "self"}}
	links, err = appendCursorLinks(c, pagination, links)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, EditionsPage{Results: results, Links: links}, fiber.StatusOK)
}

func appendCursorLinks(c *fiber.Ctx, p *queries.KeysetPagination, links []PageLink) ([]PageLink, error) {
	hasPrevious, err := p.HasNextBefore()
	if err != nil {
		return nil, err
	}
	if hasPrevious {
		links = append(links, PageLink{
			Href: cursorURL(c, "before", p.NextBeforeKey()),
			Rel:  "previous",
		})
	}

	hasNext, err := p.HasNextAfter()
	if err != nil {
		return nil, err
	}
	if hasNext {
		links = append(links, PageLink{
			Href: cursorURL(c, "after", p.NextAfterKey()),
			Rel:  "next",
		})
	}
	return links, nil
}

func cursorURL(c *fiber.Ctx, direction string, cursor []string) string {
	params := []string{direction + "=" + strings.Join(cursor, ",")}
	for _, name := range []string{"states", "order", "per_page"} {
		if v := c.Query(name); v != "" {
			params = append(params, name+"="+v)
		}
	}
	return c.Path() + "?" + strings.Join(params, "&")
}

func splitParam(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
