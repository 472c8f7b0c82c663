package sync

import (
	"testing"

	"github.com/marek/maildock/internal/domain"
)

func TestReconcile(t *testing.T) {
	live := domain.FolderState{UIDValidity: 10, UIDNext: 101, TotalCount: 100}

	tests := []struct {
		name string
		old  *domain.Folder
		live domain.FolderState
		want Plan
	}{
		{
			name: "unseen folder",
			old:  nil,
			live: live,
			want: Plan{Kind: PlanFull, Total: 100},
		},
		{
			name: "checkpoint never completed a pass",
			old:  &domain.Folder{UIDValidity: 10, UIDNext: 0},
			live: live,
			want: Plan{Kind: PlanFull, Total: 100},
		},
		{
			name: "validity changed",
			old:  &domain.Folder{UIDValidity: 9, UIDNext: 80},
			live: live,
			want: Plan{Kind: PlanFull, Purge: true, Total: 100},
		},
		{
			name: "watermark advanced",
			old:  &domain.Folder{UIDValidity: 10, UIDNext: 98},
			live: live,
			want: Plan{Kind: PlanIncremental, StartUID: 98},
		},
		{
			name: "up to date",
			old:  &domain.Folder{UIDValidity: 10, UIDNext: 101},
			live: live,
			want: Plan{Kind: PlanNone},
		},
		{
			name: "empty folder unseen",
			old:  nil,
			live: domain.FolderState{UIDValidity: 10, UIDNext: 1, TotalCount: 0},
			want: Plan{Kind: PlanFull, Total: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.old, tt.live)
			if got != tt.want {
				t.Errorf("Reconcile() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
