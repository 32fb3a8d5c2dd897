package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/webcron/internal/database"
)

// dateLayouts are the accepted formats for date filter parameters.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

// respondError writes a JSON error body with the given status.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// parsePagination reads page and limit query parameters, applying the
// defaults and the hard cap.
func parsePagination(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(database.DefaultLogLimit)))
	if err != nil || limit < 1 {
		limit = database.DefaultLogLimit
	}
	if limit > database.MaxLogLimit {
		limit = database.MaxLogLimit
	}

	return page, limit
}

// parseDateQuery reads an optional date parameter. Bare dates are taken as
// midnight UTC.
func parseDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

// parseBoolQuery reads an optional boolean parameter.
func parseBoolQuery(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &value, true
}
