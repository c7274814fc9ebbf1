// internal/utils/pagination.go
package utils

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is the slice of a listing a client asked for. Sort is an API
// sort key; each repository decides which keys it accepts.
type PageRequest struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Sort   string `json:"sort,omitempty"`
	Desc   bool   `json:"desc"`
	Search string `json:"search,omitempty"`
}

// Normalized clamps the page to 1.. and the size to 1..MaxPageSize.
func (p PageRequest) Normalized() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > MaxPageSize {
		p.Limit = DefaultPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	n := p.Normalized()
	return (n.Page - 1) * n.Limit
}

// PageRequestFrom reads page, limit, sort, order and search from the query
// string. A sort key prefixed with "-" sorts descending; without a sort the
// newest records come first.
func PageRequestFrom(c *gin.Context) PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageSize)))

	req := PageRequest{
		Page:   page,
		Limit:  limit,
		Desc:   true,
		Search: strings.TrimSpace(c.Query("search")),
	}
	if sort := strings.TrimSpace(c.Query("sort")); sort != "" {
		req.Sort = strings.TrimPrefix(sort, "-")
		req.Desc = strings.HasPrefix(sort, "-")
	}
	switch strings.ToLower(c.Query("order")) {
	case "asc":
		req.Desc = false
	case "desc":
		req.Desc = true
	}
	return req.Normalized()
}

// Page is one page of a listing together with its position in the whole.
type Page struct {
	Items      interface{} `json:"data"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
}

func NewPage(items interface{}, total int64, req PageRequest) Page {
	req = req.Normalized()
	return Page{
		Items:      items,
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(req.Limit))),
	}
}

func writePageHeaders(c *gin.Context, p Page) {
	c.Header("X-Total-Count", strconv.FormatInt(p.Total, 10))
	c.Header("X-Page", strconv.Itoa(p.Page))
	c.Header("X-Per-Page", strconv.Itoa(p.Limit))
	c.Header("X-Total-Pages", strconv.Itoa(p.TotalPages))
}
