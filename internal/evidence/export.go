package evidence

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

type report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Items       any       `json:"items"`
}

var csvHeader = []string{"ID", "Name", "Type", "Category", "Uploaded By", "Uploaded At", "Last Modified", "File Size", "Tags", "Frameworks", "Linked Tasks"}

// Export writes the items matching f as a JSON report or a CSV sheet.
func (v *Vault) Export(ctx context.Context, w io.Writer, format string, f Filter) error {
	items, err := v.List(ctx, f)
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report{GeneratedAt: v.Clock.Now().UTC(), Count: len(items), Items: items})
	case FormatCSV:
		cw := csv.NewWriter(w)
		_ = cw.Write(csvHeader)
		for _, it := range items {
			_ = cw.Write([]string{
				it.ID, it.Name, it.Type, it.Category, it.UploadedBy,
				it.UploadedAt.Format(time.RFC3339), it.LastModified.Format(time.RFC3339), it.FileSize,
				strings.Join(it.Tags, ";"), strings.Join(it.Frameworks, ";"), strings.Join(it.LinkedTasks, ";"),
			})
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
