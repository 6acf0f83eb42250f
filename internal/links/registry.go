package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatedrop-bot/internal/content"
	"gatedrop-bot/internal/models"
	"gatedrop-bot/internal/state"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a token does not resolve to a batch.
var ErrNotFound = errors.New("batch link not found")

const (
	tokenLength      = 8
	maxTokenAttempts = 16
)

// FetchFunc loads the source post with the given id.
type FetchFunc func(ctx context.Context, id int) (models.ContentItem, error)

// Registry creates and resolves batch links.
type Registry struct {
	state    *state.State
	clock    clock.Clock
	log      *slog.Logger
	newToken func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(fn func() string) Option {
	return func(r *Registry) { r.newToken = fn }
}

// NewRegistry creates a registry over st.
func NewRegistry(st *state.State, clk clock.Clock, log *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		state: st,
		clock: clk,
		log:   log,
		newToken: func() string {
			return uuid.NewString()[:tokenLength]
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateBatch builds a batch from the inclusive range between first and last,
// whichever order they are given in. Posts that fail to fetch are skipped.
func (r *Registry) CreateBatch(ctx context.Context, first, last int, fetch FetchFunc) (*models.BatchLink, error) {
	start, end := first, last
	if start > end {
		start, end = end, start
	}

	link := models.BatchLink{RangeStart: start, RangeEnd: end}
	seen := make(map[string]bool)
	for id := start; id <= end; id++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := fetch(ctx, id)
		if err != nil {
			r.log.Warn("skipping source post", "post_id", id, "error", err)
			continue
		}
		link.Items = append(link.Items, item)
		for _, u := range content.ExtractURLs(item.OriginalText) {
			if !seen[u] {
				seen[u] = true
				link.URLs = append(link.URLs, u)
			}
		}
	}

	err := r.state.Update(ctx, func(d *models.Snapshot) error {
		token, err := r.uniqueToken(d.Links)
		if err != nil {
			return err
		}
		link.Token = token
		link.CreatedAt = r.clock.Now()
		d.Links[token] = link.Clone()
		d.LinkOrder = append(d.LinkOrder, token)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store batch %d-%d: %w", start, end, err)
	}

	r.log.Info("batch created", "token", link.Token, "range_start", start, "range_end", end,
		"items", len(link.Items), "urls", len(link.URLs))
	return &link, nil
}

func (r *Registry) uniqueToken(existing map[string]models.BatchLink) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token := r.newToken()
		if _, taken := existing[token]; !taken && token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("no free token after %d attempts", maxTokenAttempts)
}

// Resolve returns a copy of the batch for token.
func (r *Registry) Resolve(token string) (models.BatchLink, error) {
	var (
		link models.BatchLink
		ok   bool
	)
	r.state.View(func(d *models.Snapshot) {
		var stored models.BatchLink
		stored, ok = d.Links[token]
		if ok {
			link = stored.Clone()
		}
	})
	if !ok {
		return models.BatchLink{}, ErrNotFound
	}
	return link, nil
}

// List returns summaries of every batch in creation order.
func (r *Registry) List() []models.BatchSummary {
	var out []models.BatchSummary
	r.state.View(func(d *models.Snapshot) {
		out = make([]models.BatchSummary, 0, len(d.LinkOrder))
		for _, token := range d.LinkOrder {
			if link, ok := d.Links[token]; ok {
				out = append(out, link.Summary())
			}
		}
	})
	return out
}
