package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/user/cardshot/internal/entity"
)

func TestInspectRun(t *testing.T) {
	ctx := context.Background()
	records := &fakeRecords{saved: []*entity.RenderRecord{
		{RunID: "run-a", Index: 0, Path: "out/a.png"},
		{RunID: "run-b", Index: 0, Path: "out/other.png"},
		{RunID: "run-a", Index: 1, Path: "out/b.png"},
	}}
	progress := newFakeProgress()
	progress.Start(ctx, "run-a", 2)
	progress.Advance(ctx, "run-a", "out/a.png")
	progress.Advance(ctx, "run-a", "out/b.png")
	progress.Finish(ctx, "run-a", progressCompleted)

	report, err := NewRunInspector(records, progress).Inspect(ctx, "run-a")
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if report.RunID != "run-a" {
		t.Errorf("RunID = %q, want run-a", report.RunID)
	}
	if report.Progress == nil || report.Progress.Total != 2 || report.Progress.Status != progressCompleted {
		t.Errorf("Progress = %+v", report.Progress)
	}
	if len(report.Records) != 2 || report.Records[0].Path != "out/a.png" || report.Records[1].Path != "out/b.png" {
		t.Errorf("Records = %+v", report.Records)
	}
}

func TestInspectSingleStore(t *testing.T) {
	ctx := context.Background()

	records := &fakeRecords{saved: []*entity.RenderRecord{{RunID: "run-a", Path: "out/a.png"}}}
	report, err := NewRunInspector(records, nil).Inspect(ctx, "run-a")
	if err != nil {
		t.Fatalf("Inspect() with history only error = %v", err)
	}
	if report.Progress != nil || len(report.Records) != 1 {
		t.Errorf("report = %+v", report)
	}

	progress := newFakeProgress()
	progress.Start(ctx, "run-b", 3)
	report, err = NewRunInspector(nil, progress).Inspect(ctx, "run-b")
	if err != nil {
		t.Fatalf("Inspect() with progress only error = %v", err)
	}
	if report.Progress == nil || report.Progress.Total != 3 {
		t.Errorf("Progress = %+v", report.Progress)
	}
	if report.Records == nil || len(report.Records) != 0 {
		t.Errorf("Records = %#v, want an empty list", report.Records)
	}
}

func TestInspectErrors(t *testing.T) {
	errDown := errors.New("connection refused")

	tests := []struct {
		name      string
		inspector *RunInspector
		want      error
	}{
		{name: "no stores", inspector: NewRunInspector(nil, nil), want: entity.ErrConfig},
		{name: "unknown run", inspector: NewRunInspector(&fakeRecords{}, newFakeProgress()), want: ErrRunNotFound},
		{name: "history unreachable", inspector: NewRunInspector(&fakeRecords{listErr: errDown}, nil), want: entity.ErrResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.inspector.Inspect(context.Background(), "run-x")
			if !errors.Is(err, tt.want) {
				t.Errorf("Inspect() error = %v, want %v", err, tt.want)
			}
		})
	}
}
