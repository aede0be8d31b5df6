package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/kafka"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
)

type fakeBatcher struct {
	got    []models.RawRecord
	report *reconcile.Report
	err    error
}

func (f *fakeBatcher) ProcessBatch(ctx context.Context, records []models.RawRecord) (*reconcile.Report, error) {
	f.got = append(f.got, records...)
	return f.report, f.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestBatchHandler(t *testing.T) {
	batcher := &fakeBatcher{report: &reconcile.Report{Total: 1, Processed: 1, Linked: 1}}
	totals := &batchTotals{}
	handler := newBatchHandler(batcher, testLogger(), totals)

	err := handler(context.Background(), []*kafka.IncomingMessage{
		{Key: "rec-1", Value: []byte(`{"raw_name":"Jon Jones","raw_result":"win"}`), Headers: map[string]string{"source": "sherdog"}},
		{Key: "rec-2", Value: []byte(`not json`)},
	})
	require.NoError(t, err)

	require.Len(t, batcher.got, 1)
	assert.Equal(t, "rec-1", batcher.got[0].ID)
	assert.Equal(t, "sherdog", batcher.got[0].Source)

	snapshot := totals.snapshot()
	assert.Equal(t, 1, snapshot.Total)
	assert.Equal(t, 1, snapshot.Linked)
}

func TestBatchHandler_PropagatesCancellation(t *testing.T) {
	batcher := &fakeBatcher{report: &reconcile.Report{Total: 1, Skipped: 1}, err: context.Canceled}
	handler := newBatchHandler(batcher, testLogger(), &batchTotals{})

	err := handler(context.Background(), []*kafka.IncomingMessage{
		{Value: []byte(`{"raw_name":"Jon Jones","raw_result":"win"}`)},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchHandler_AllUndecodable(t *testing.T) {
	batcher := &fakeBatcher{err: errors.New("must not be called")}
	handler := newBatchHandler(batcher, testLogger(), &batchTotals{})

	err := handler(context.Background(), []*kafka.IncomingMessage{{Value: []byte(`[`)}})
	require.NoError(t, err)
	assert.Empty(t, batcher.got)
}

func TestReviewResolveFlags_Decision(t *testing.T) {
	tests := []struct {
		name    string
		flags   reviewResolveFlags
		want    reconcile.Decision
		wantErr bool
	}{
		{name: "link", flags: reviewResolveFlags{linkTo: "c-1"}, want: reconcile.LinkTo("c-1")},
		{name: "create", flags: reviewResolveFlags{create: true}, want: reconcile.CreateNew()},
		{name: "reject", flags: reviewResolveFlags{reject: true}, want: reconcile.Reject()},
		{name: "none", flags: reviewResolveFlags{}, wantErr: true},
		{name: "two", flags: reviewResolveFlags{linkTo: "c-1", reject: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.decision()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteStructured(t *testing.T) {
	report := &reconcile.Report{Total: 2, Linked: 1, Queued: 1}

	var js bytes.Buffer
	require.NoError(t, writeStructured(&js, outputJSON, report))
	assert.Contains(t, js.String(), `"queued": 1`)

	var ys bytes.Buffer
	require.NoError(t, writeStructured(&ys, outputYAML, report))
	assert.Contains(t, ys.String(), "queued: 1")

	assert.Error(t, validateOutput("xml"))
	assert.NoError(t, validateOutput(outputText))
}

func TestPrintReport_Text(t *testing.T) {
	var buf bytes.Buffer
	report := &reconcile.Report{
		Total:   2,
		Created: 1,
		Skipped: 1,
		Issues:  []reconcile.RecordIssue{{RecordID: "rec-9", Kind: reconcile.IssueInvalid, Reason: "raw_name is required"}},
	}
	require.NoError(t, printReport(&buf, outputText, report, nil))
	assert.Contains(t, buf.String(), "rec-9 [invalid] raw_name is required")
	assert.NotContains(t, buf.String(), "Store:")
}
