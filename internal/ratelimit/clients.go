package ratelimit

import (
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/keithlinneman/atelier-web/internal/apperr"
	"github.com/keithlinneman/atelier-web/internal/httpjson"
	"github.com/keithlinneman/atelier-web/internal/validate"
)

// Client is one tracked identifier and its live window.
type Client struct {
	Key     string    `json:"key"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// Lister is implemented by stores that can enumerate live windows.
type Lister interface {
	Clients(now time.Time) []Client
}

// Clients returns the windows still open at now, busiest first.
func (s *MemoryStore) Clients(now time.Time) []Client {
	s.mu.Lock()
	out := make([]Client, 0, len(s.entries))
	for k, e := range s.entries {
		if !now.After(e.ResetAt) {
			out = append(out, Client{Key: k, Count: e.Count, ResetAt: e.ResetAt})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ClientsPage is one page of tracked clients.
type ClientsPage struct {
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
	Max     int      `json:"maxRequests"`
	Clients []Client `json:"clients"`
}

// ClientsHandler serves the limiter's tracked clients for the ops listener.
// ?key= selects one client; otherwise ?page= and ?limit= page the list.
func (l *Limiter) ClientsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := l.clients(r.URL.Query())
		if err != nil {
			status := apperr.StatusOf(err)
			msg := http.StatusText(status)
			if op, ok := apperr.Classify(err).(apperr.Operational); ok {
				msg = op.Message
			}
			_ = httpjson.Error(w, status, msg)
			return
		}
		_ = httpjson.Write(w, http.StatusOK, v)
	})
}

func (l *Limiter) clients(q url.Values) (any, error) {
	lister, ok := l.store.(Lister)
	if !ok {
		return nil, apperr.Unavailable("rate limit store cannot list clients")
	}
	all := lister.Clients(l.now())

	if q.Has("key") {
		key, err := validate.ID(q.Get("key"))
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if c.Key == key {
				return c, nil
			}
		}
		return nil, apperr.NotFound("client not tracked")
	}

	p, err := validate.ParsePagination(q)
	if err != nil {
		return nil, err
	}
	lo := min(p.Offset(), len(all))
	hi := min(lo+p.Limit, len(all))
	return ClientsPage{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   len(all),
		Max:     l.max,
		Clients: all[lo:hi],
	}, nil
}
