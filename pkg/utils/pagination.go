package utils

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageRequest is the page window of a listing request, parsed from the
// page/limit query parameters. The limit is clamped so a single trash or
// share page stays bounded no matter what the client asks for.
type PageRequest struct {
	Page  int
	Limit int
}

func PageFromQuery(c *fiber.Ctx) PageRequest {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return PageRequest{Page: page, Limit: limit}
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Scope applies the window to a query; usable directly with gorm's Scopes.
func (p PageRequest) Scope(db *gorm.DB) *gorm.DB {
	return db.Offset(p.Offset()).Limit(p.Limit)
}
