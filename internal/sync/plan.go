package sync

import "github.com/marek/maildock/internal/domain"

// PlanKind selects how a folder is brought up to date.
type PlanKind int

const (
	// PlanNone means the cache already matches the server.
	PlanNone PlanKind = iota
	// PlanFull re-fetches the whole folder in descending sequence windows.
	PlanFull
	// PlanIncremental fetches only UIDs at or above StartUID.
	PlanIncremental
)

func (k PlanKind) String() string {
	switch k {
	case PlanFull:
		return "full"
	case PlanIncremental:
		return "incremental"
	default:
		return "none"
	}
}

// Plan is the fetch strategy decided for one folder sync pass.
type Plan struct {
	Kind PlanKind
	// Purge drops all cached emails for the folder before fetching. Set
	// when the server's validity token changed and cached UIDs are stale.
	Purge bool
	// Total is the live message count; full syncs cover sequence 1..Total.
	Total uint32
	// StartUID is the first UID of an incremental fetch (open-ended).
	StartUID uint32
}

// Reconcile compares the stored checkpoint against the live folder state
// and decides the sync plan. A nil checkpoint (folder never seen) and a
// checkpoint that never completed a pass (UIDNext == 0) both force a full
// sync; only a checkpoint from a different validity epoch triggers a purge.
func Reconcile(old *domain.Folder, live domain.FolderState) Plan {
	if old == nil || old.UIDNext == 0 {
		return Plan{Kind: PlanFull, Total: live.TotalCount}
	}
	if old.UIDValidity != live.UIDValidity {
		return Plan{
			Kind:  PlanFull,
			Purge: old.UIDValidity != 0,
			Total: live.TotalCount,
		}
	}
	if live.UIDNext > old.UIDNext {
		return Plan{Kind: PlanIncremental, StartUID: old.UIDNext}
	}
	return Plan{Kind: PlanNone}
}
