package validate

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/keithlinneman/atelier-web/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

type Pagination struct {
	Page  int `json:"page" validate:"gte=1"`
	Limit int `json:"limit" validate:"gte=1,lte=100"`
}

// Offset is the number of rows to skip for the page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// ParsePagination reads page and limit from a query string, defaulting
// absent values.
func ParsePagination(q url.Values) (Pagination, error) {
	p := Pagination{Page: DefaultPage, Limit: DefaultLimit}

	for _, f := range []struct {
		key string
		dst *int
	}{{"page", &p.Page}, {"limit", &p.Limit}} {
		raw := q.Get(f.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Pagination{}, apperr.Wrap(err, http.StatusBadRequest, f.key+" must be an integer")
		}
		*f.dst = n
	}

	if err := Struct(p); err != nil {
		return Pagination{}, err
	}
	return p, nil
}
