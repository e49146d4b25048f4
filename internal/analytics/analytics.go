// Package analytics aggregates response counts, timelines, and answer
// distributions for a form (C11). All aggregates ignore soft-deleted
// responses and drafts except where §4.11 asks for the draft count itself.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
)

// Summary is the result of Aggregator.Summary.
type Summary struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	Drafts          int            `json:"drafts"`
	LastSubmittedAt *time.Time     `json:"last_submitted_at,omitempty"`
}

// TimelinePoint is one day's submission count.
type TimelinePoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Aggregator computes analytics over a form's responses, combining direct
// SQL aggregate queries (cheap, indexed columns) with C3/C5 for the
// schema-aware Distribution computation that needs to know which
// questions are choice fields.
type Aggregator struct {
	db        *database.DB
	forms     *forms.Store
	responses *responses.Store
}

// NewAggregator builds an Aggregator backed by db, forms and responses.
func NewAggregator(db *database.DB, formStore *forms.Store, respStore *responses.Store) *Aggregator {
	return &Aggregator{db: db, forms: formStore, responses: respStore}
}

// Summary implements §4.11's Summary(form_id): total/by_status count
// non-deleted, non-draft responses; drafts counts non-deleted drafts
// separately; last_submitted_at is over the same non-draft set as total.
//
// Grouped counts over an indexed (form_id, deleted, is_draft, status)
// predicate are exactly what database/sql aggregate queries are for; no
// third-party aggregation library appears anywhere in the example corpus,
// so this stays on the standard library rather than reaching for one.
func (a *Aggregator) Summary(ctx context.Context, formID string) (*Summary, error) {
	sum := &Summary{ByStatus: map[string]int{}}

	rows, err := a.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM _ff_form_responses WHERE form_id = ? AND deleted = 0 AND is_draft = 0 GROUP BY status`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		sum.ByStatus[status] = count
		sum.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _ff_form_responses WHERE form_id = ? AND deleted = 0 AND is_draft = 1`,
		formID,
	).Scan(&sum.Drafts); err != nil {
		return nil, fmt.Errorf("counting drafts: %w", err)
	}

	var lastSubmitted string
	err = a.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(submitted_at), '') FROM _ff_form_responses WHERE form_id = ? AND deleted = 0 AND is_draft = 0`,
		formID,
	).Scan(&lastSubmitted)
	if err != nil {
		return nil, fmt.Errorf("finding last submission: %w", err)
	}
	if lastSubmitted != "" {
		if t, err := time.Parse(time.RFC3339, lastSubmitted); err == nil {
			sum.LastSubmittedAt = &t
		}
	}

	return sum, nil
}

// Timeline implements §4.11's Timeline(form_id, days): a zero-filled daily
// count of non-deleted, non-draft submissions over the last `days` days
// (including today).
func (a *Aggregator) Timeline(ctx context.Context, formID string, days int) ([]TimelinePoint, error) {
	if days <= 0 {
		days = 30
	}

	since := time.Now().UTC().AddDate(0, 0, -days+1).Truncate(24 * time.Hour)

	rows, err := a.db.QueryContext(ctx,
		`SELECT substr(submitted_at, 1, 10), COUNT(*) FROM _ff_form_responses
		 WHERE form_id = ? AND deleted = 0 AND is_draft = 0 AND submitted_at >= ?
		 GROUP BY substr(submitted_at, 1, 10)`,
		formID, since.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating timeline: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("scanning timeline row: %w", err)
		}
		counts[day] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	points := make([]TimelinePoint, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		points = append(points, TimelinePoint{Date: day, Count: counts[day]})
	}
	return points, nil
}

// Distribution implements §4.11's Distribution(form_id): for every
// select/radio/checkbox question in the form's active version, a count of
// how many non-deleted, non-draft responses hold each option_value.
//
// This needs the active version's schema (to know which questions are
// choice fields) alongside every matching response's flattened data, so it
// can't be expressed as a single SQL aggregate the way Summary/Timeline
// are — it walks ListPaginated pages the same way C12's CSV export does,
// applying the same in-Go flattening C5's Search already uses for its
// filter tree.
func (a *Aggregator) Distribution(ctx context.Context, formID string) (map[string]map[string]int, error) {
	version, err := a.forms.GetActiveVersion(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("loading active version: %w", err)
	}

	choiceQuestions := map[string]bool{}
	for _, section := range version.Sections {
		for _, q := range section.Questions {
			if q.FieldType == forms.FieldSelect || q.FieldType == forms.FieldRadio || q.FieldType == forms.FieldCheckbox {
				choiceQuestions[q.ID] = true
			}
		}
	}

	dist := make(map[string]map[string]int, len(choiceQuestions))
	for id := range choiceQuestions {
		dist[id] = map[string]int{}
	}

	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, err := a.responses.ListPaginated(ctx, responses.ListPaginatedFilter{FormID: formID, Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("listing responses: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, resp := range page {
			if resp.IsDraft {
				continue
			}
			flat := responses.FlattenData(resp.Data)
			for qid := range choiceQuestions {
				tallyAnswer(dist[qid], flat[qid])
			}
		}

		if len(page) < pageSize {
			break
		}
	}

	return dist, nil
}

func tallyAnswer(counts map[string]int, value any) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		counts[v]++
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				counts[s]++
			}
		}
	}
}
