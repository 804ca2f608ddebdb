package evidence_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/evidence"
	"complyflow/internal/logging"
	"complyflow/internal/storage"
)

func newVault(t *testing.T) (*evidence.Vault, *clocktesting.FakeClock, *events.Memory) {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	rec := &events.Memory{}
	v := evidence.New(storage.New(storage.NewMemory(), storage.WithLogger(logging.Discard())))
	v.Clock = clk
	v.Events = rec
	v.Logger = logging.Discard()
	return v, clk, rec
}

func TestAddAndAudit(t *testing.T) {
	ctx := context.Background()
	v, clk, rec := newVault(t)

	it, err := v.Add(ctx, evidence.AddInput{
		Name:       "Privacy Policy v2",
		Type:       "policy",
		SizeBytes:  2_500_000,
		Tags:       []string{"gdpr"},
		Frameworks: []string{"GDPR"},
	}, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, it.ID)
	require.Equal(t, "2.5 MB", it.FileSize)
	require.Equal(t, "u1", it.UploadedBy)
	require.Len(t, it.AuditTrail, 1)
	require.Equal(t, evidence.ActionUploaded, it.AuditTrail[0].Action)

	clk.Step(time.Hour)
	name := "Privacy Policy v3"
	it, err = v.Update(ctx, it.ID, evidence.UpdateInput{Name: &name}, "u2")
	require.NoError(t, err)
	require.Equal(t, name, it.Name)
	require.Equal(t, clk.Now(), it.LastModified)

	it, err = v.LinkTask(ctx, it.ID, "task-1", "u2")
	require.NoError(t, err)
	it, err = v.LinkTask(ctx, it.ID, "task-1", "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"task-1"}, it.LinkedTasks)

	it, err = v.RecordAccess(ctx, it.ID, evidence.ActionDownloaded, "u3")
	require.NoError(t, err)

	var actions []string
	for _, a := range it.AuditTrail {
		actions = append(actions, a.Action)
	}
	require.Equal(t, []string{"uploaded", "updated", "linked_task", "linked_task", "downloaded"}, actions)
	require.Equal(t, "name", it.AuditTrail[1].Details)

	got, err := v.Get(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, it, got)

	require.NoError(t, v.Delete(ctx, it.ID, "u1"))
	_, err = v.Get(ctx, it.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, []string{"evidence.added", "evidence.deleted"}, rec.Types())
}

func TestAddRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newVault(t)

	_, err := v.Add(ctx, evidence.AddInput{Type: "memo"}, "u1")
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	var verr domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 2)

	_, err = v.RecordAccess(ctx, "missing", "printed", "u1")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = v.RecordAccess(ctx, "missing", evidence.ActionViewed, "u1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, v.Delete(ctx, "missing", "u1"), domain.ErrNotFound)

	blank := " "
	_, err = v.Update(ctx, "missing", evidence.UpdateInput{Name: &blank}, "u1")
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	v, clk, _ := newVault(t)
	add := func(in evidence.AddInput) {
		_, err := v.Add(ctx, in, "u1")
		require.NoError(t, err)
		clk.Step(time.Minute)
	}
	add(evidence.AddInput{Name: "Retention Procedure", Type: "procedure", Frameworks: []string{"GDPR"}, Tags: []string{"retention"}})
	add(evidence.AddInput{Name: "Staff Training Log", Type: "training", Frameworks: []string{"CCPA"}})
	add(evidence.AddInput{Name: "DPIA Payroll", Type: "assessment", Description: "payroll retention review", Frameworks: []string{"GDPR"}})

	all, err := v.List(ctx, evidence.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "DPIA Payroll", all[0].Name)

	gdpr, err := v.List(ctx, evidence.Filter{Framework: "GDPR"})
	require.NoError(t, err)
	require.Len(t, gdpr, 2)

	q, err := v.List(ctx, evidence.Filter{Query: "RETENTION"})
	require.NoError(t, err)
	require.Len(t, q, 2)

	tagged, err := v.List(ctx, evidence.Filter{Tag: "retention", Type: "procedure"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	v, _, _ := newVault(t)
	_, err := v.Add(ctx, evidence.AddInput{Name: "Breach Log, 2024", Type: "legal", Tags: []string{"a", "b"}}, "u1")
	require.NoError(t, err)

	var sheet bytes.Buffer
	require.NoError(t, v.Export(ctx, &sheet, evidence.FormatCSV, evidence.Filter{}))
	rows, err := csv.NewReader(&sheet).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"ID", "Name", "Type"}, rows[0][:3])
	require.Equal(t, "Breach Log, 2024", rows[1][1])
	require.Equal(t, "a;b", rows[1][8])

	var js bytes.Buffer
	require.NoError(t, v.Export(ctx, &js, evidence.FormatJSON, evidence.Filter{}))
	var rep struct {
		Count int                   `json:"count"`
		Items []domain.EvidenceItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(js.Bytes(), &rep))
	require.Equal(t, 1, rep.Count)
	require.Equal(t, "Breach Log, 2024", rep.Items[0].Name)

	require.Error(t, v.Export(ctx, &js, "xml", evidence.Filter{}))
}
