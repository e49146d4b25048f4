// Package export renders a form's responses to CSV or JSON, and bundles
// several forms' CSVs into a compressed archive (C12).
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
)

// Exporter renders CSV/JSON exports of a form's responses.
type Exporter struct {
	forms     *forms.Store
	responses *responses.Store
}

// NewExporter builds an Exporter backed by formStore and respStore.
func NewExporter(formStore *forms.Store, respStore *responses.Store) *Exporter {
	return &Exporter{forms: formStore, responses: respStore}
}

// columnKey pairs a question with the section it lives in, used to build
// the "(section.question)" header §4.12 specifies and to look the answer
// up in a response's flattened data afterward.
type columnKey struct {
	sectionTitle string
	question     forms.Question
}

func (c columnKey) header() string {
	return fmt.Sprintf("%s.%s", c.sectionTitle, c.question.Label)
}

// buildColumns walks the version's sections in order, skipping layout-only
// field types (divider/spacer carry no answer).
func buildColumns(version *forms.FormVersion) []columnKey {
	var cols []columnKey
	for _, section := range version.Sections {
		for _, q := range section.Questions {
			if q.FieldType == forms.FieldDivider || q.FieldType == forms.FieldSpacer {
				continue
			}
			cols = append(cols, columnKey{sectionTitle: section.Title, question: q})
		}
	}
	return cols
}

// CSV implements §4.12's CSV export: one row per non-deleted, non-draft
// response, columns = flattened (section.question) header pairs plus
// response_id/submitted_by/submitted_at/status; checkbox arrays join
// with "|".
func (e *Exporter) CSV(ctx context.Context, formID string) ([]byte, error) {
	version, err := e.forms.GetActiveVersion(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("loading active version: %w", err)
	}
	cols := buildColumns(version)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(cols)+4)
	for _, c := range cols {
		header = append(header, c.header())
	}
	header = append(header, "response_id", "submitted_by", "submitted_at", "status")
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing csv header: %w", err)
	}

	if err := e.writeResponseRows(ctx, formID, cols, w); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) writeResponseRows(ctx context.Context, formID string, cols []columnKey, w *csv.Writer) error {
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, err := e.responses.ListPaginated(ctx, responses.ListPaginatedFilter{FormID: formID, Offset: offset, Limit: pageSize})
		if err != nil {
			return fmt.Errorf("listing responses: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, resp := range page {
			if resp.IsDraft {
				continue
			}
			flat := responses.FlattenData(resp.Data)

			row := make([]string, 0, len(cols)+4)
			for _, c := range cols {
				row = append(row, formatCell(flat[c.question.ID]))
			}
			row = append(row, resp.ID, resp.SubmittedBy, resp.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z07:00"), string(resp.Status))
			if err := w.Write(row); err != nil {
				return fmt.Errorf("writing csv row: %w", err)
			}
		}

		if len(page) < pageSize {
			return nil
		}
	}
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
		}
		return strings.Join(parts, "|")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// JSONExport is the §4.12 JSON export document shape.
type JSONExport struct {
	Form      *forms.Form               `json:"form"`
	Responses []*responses.FormResponse `json:"responses"`
}

// JSON implements §4.12's JSON export: the full form definition plus every
// non-deleted, non-draft response.
func (e *Exporter) JSON(ctx context.Context, formID string) ([]byte, error) {
	form, err := e.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, fmt.Errorf("loading form: %w", err)
	}

	var all []*responses.FormResponse
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		page, err := e.responses.ListPaginated(ctx, responses.ListPaginatedFilter{FormID: formID, Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("listing responses: %w", err)
		}
		for _, resp := range page {
			if !resp.IsDraft {
				all = append(all, resp)
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	return json.Marshal(JSONExport{Form: form, Responses: all})
}

// Bulk implements §4.12's Bulk export: a zip archive containing one CSV
// per requested form, named "<slug>.csv". Uses klauspost/compress's
// archive/zip-compatible implementation (already in the dependency set
// for storage compression) rather than the standard library's
// archive/zip, so the archive benefits from its faster deflate encoder.
func (e *Exporter) Bulk(ctx context.Context, formIDs []string) ([]byte, error) {
	sorted := append([]string{}, formIDs...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, formID := range sorted {
		form, err := e.forms.GetForm(ctx, formID)
		if err != nil {
			return nil, fmt.Errorf("loading form %s: %w", formID, err)
		}
		csvData, err := e.CSV(ctx, formID)
		if err != nil {
			return nil, fmt.Errorf("exporting form %s: %w", formID, err)
		}

		name := form.Slug
		if name == "" {
			name = form.ID
		}
		fw, err := zw.Create(name + ".csv")
		if err != nil {
			return nil, fmt.Errorf("creating archive entry for %s: %w", formID, err)
		}
		if _, err := fw.Write(csvData); err != nil {
			return nil, fmt.Errorf("writing archive entry for %s: %w", formID, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
