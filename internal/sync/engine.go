// Package sync keeps the local mail cache consistent with server state.
// It decides per folder whether a full or incremental fetch is needed,
// retrieves envelopes in bounded windows, commits them transactionally,
// and supervises per-account watch connections for near-real-time updates.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/imap"
	"github.com/marek/maildock/internal/notify"
	"github.com/marek/maildock/internal/store"
)

// AccountSource resolves account identities to connection parameters and
// credentials. *accounts.Registry implements it.
type AccountSource interface {
	List() ([]accounts.Config, error)
	Get(id string) (*accounts.Config, error)
}

// Options tunes the engine. Zero values fall back to the defaults used in
// production.
type Options struct {
	BatchSize int
	Interval  time.Duration
	Backoff   time.Duration
	Logger    *logrus.Logger
}

// Engine is the top-level sync orchestrator: it owns the startup sweep,
// the periodic background sweep and one watch supervisor per account.
type Engine struct {
	store    store.Store
	accounts AccountSource
	dial     imap.Dialer
	bus      *notify.Bus
	log      *logrus.Logger

	batchSize uint32
	interval  time.Duration
	backoff   time.Duration

	mu       gosync.Mutex
	watchers map[string]context.CancelFunc
	cancel   context.CancelFunc
	wg       gosync.WaitGroup
}

// New creates an Engine. The dialer opens one protocol session per sync
// operation; tests substitute fakes.
func New(st store.Store, accts AccountSource, dial imap.Dialer, bus *notify.Bus, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{
		store:     st,
		accounts:  accts,
		dial:      dial,
		bus:       bus,
		log:       opts.Logger,
		batchSize: uint32(opts.BatchSize),
		interval:  opts.Interval,
		backoff:   opts.Backoff,
		watchers:  make(map[string]context.CancelFunc),
	}
}

// Start runs one awaited sweep over all accounts so the first reads hit
// committed data, then launches the periodic sweep and one watch
// supervisor per account. It returns once the initial sweep finished.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.SyncAll(runCtx)

	e.wg.Add(1)
	go e.periodicLoop(runCtx)

	accts, err := e.accounts.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, acct := range accts {
		if err := e.StartWatch(runCtx, acct.ID); err != nil {
			e.log.WithField("account", acct.Email).WithError(err).Warn("failed to start watch supervisor")
		}
	}
	return nil
}

// Close stops the periodic sweep and all watch supervisors and waits for
// them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) periodicLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SyncAll(ctx)
		}
	}
}

// SyncAll reconciles every folder of every account. Failures are isolated:
// one account's error never aborts another's pass or the scheduler.
func (e *Engine) SyncAll(ctx context.Context) {
	accts, err := e.accounts.List()
	if err != nil {
		e.log.WithError(err).Error("failed to list accounts for sweep")
		return
	}
	for _, acct := range accts {
		if err := e.syncAccount(ctx, acct.ID); err != nil {
			e.log.WithField("account", acct.Email).WithError(err).Error("account sync failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// TriggerSyncForAccount runs an on-demand sync pass for one account, used
// right after the account is added.
func (e *Engine) TriggerSyncForAccount(ctx context.Context, accountID string) error {
	return e.syncAccount(ctx, accountID)
}

func (e *Engine) syncAccount(ctx context.Context, accountID string) error {
	acct, err := e.accounts.Get(accountID)
	if err != nil {
		return err
	}
	log := e.log.WithField("account", acct.Email)

	if err := e.ensureAccountRow(ctx, acct); err != nil {
		return err
	}

	session, err := e.dial(ctx, acct)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	folders, err := session.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	log.WithField("folders", len(folders)).Debug("starting account sync")

	// A folder failure aborts that folder's pass only; the folder is
	// retried on the next scheduled sweep.
	for _, info := range folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state, err := session.SelectFolder(ctx, info.Path)
		if err != nil {
			log.WithField("folder", info.Path).WithError(err).Error("folder select failed")
			continue
		}
		if err := e.syncFolderWithState(ctx, session, acct.ID, info.Path, info.Role, state); err != nil {
			log.WithField("folder", info.Path).WithError(err).Error("folder sync failed")
		}
	}

	// Pass-completion event with no ids: listeners refresh their views.
	e.bus.EmailsUpdated(acct.ID, nil)
	return nil
}

// RefreshFolder re-reconciles a single folder on demand (manual refresh).
func (e *Engine) RefreshFolder(ctx context.Context, accountID string, folderID int64) error {
	folder, err := e.store.GetFolder(ctx, folderID)
	if err != nil {
		return err
	}
	acct, err := e.accounts.Get(accountID)
	if err != nil {
		return err
	}

	session, err := e.dial(ctx, acct)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	state, err := session.SelectFolder(ctx, folder.Path)
	if err != nil {
		return err
	}
	if err := e.syncFolderWithState(ctx, session, accountID, folder.Path, folder.Role, state); err != nil {
		return err
	}
	e.bus.EmailsUpdated(accountID, nil)
	return nil
}

// ForceFullResync drops the folder's cached emails and checkpoint, then
// runs a fresh pass that refetches everything. This is the repair path for
// server-side deletions, which incremental passes never observe.
func (e *Engine) ForceFullResync(ctx context.Context, accountID string, folderID int64) error {
	if err := e.store.PurgeFolderEmails(ctx, folderID); err != nil {
		return err
	}
	if err := e.store.AdvanceCheckpoint(ctx, folderID, domain.FolderState{}); err != nil {
		return err
	}
	return e.RefreshFolder(ctx, accountID, folderID)
}

// ensureAccountRow mirrors the registry entry into the cache so email rows
// have their foreign key target.
func (e *Engine) ensureAccountRow(ctx context.Context, acct *accounts.Config) error {
	_, err := e.store.GetAccount(ctx, acct.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return e.store.CreateAccount(ctx, &domain.Account{
		ID:          acct.ID,
		Email:       acct.Email,
		Provider:    acct.Provider,
		DisplayName: acct.DisplayName,
		CreatedAt:   acct.CreatedAt,
	})
}

// syncFolderWithState reconciles one selected folder against the live
// server state: load or create the checkpoint row, decide the plan,
// execute it, and advance the checkpoint only after every batch committed.
func (e *Engine) syncFolderWithState(ctx context.Context, session imap.Session, accountID, path string, role domain.Role, live domain.FolderState) error {
	log := e.log.WithFields(logrus.Fields{"account": accountID, "folder": path})

	folder, err := e.store.GetFolderByPath(ctx, accountID, path)
	if errors.Is(err, store.ErrNotFound) {
		folder = &domain.Folder{
			AccountID: accountID,
			Name:      path,
			Path:      path,
			Role:      role,
		}
		if err := e.store.InsertFolder(ctx, folder); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if role != domain.RoleNone && folder.Role != role {
		if err := e.store.UpdateFolderRole(ctx, folder.ID, role); err != nil {
			return err
		}
	}

	plan := Reconcile(folder, live)
	if plan.Kind == PlanNone {
		log.Debug("folder is up to date")
		return nil
	}

	if plan.Purge {
		log.Info("validity token changed, purging cached emails")
		if err := e.store.PurgeFolderEmails(ctx, folder.ID); err != nil {
			return err
		}
	}

	log.WithField("plan", plan.Kind.String()).Info("syncing folder")
	if err := e.executePlan(ctx, session, accountID, folder.ID, plan); err != nil {
		return err
	}

	// The checkpoint moves only after the whole plan committed; a failed
	// pass leaves the old checkpoint so the next pass resumes safely.
	return e.store.AdvanceCheckpoint(ctx, folder.ID, live)
}

func (e *Engine) executePlan(ctx context.Context, session imap.Session, accountID string, folderID int64, plan Plan) error {
	switch plan.Kind {
	case PlanFull:
		// Descending windows surface the newest messages first and make
		// partial progress useful immediately. No resume cursor is kept:
		// an interrupted pass re-derives the remaining range next time and
		// re-upserts idempotently.
		end := plan.Total
		for end > 0 {
			start := uint32(1)
			if end > e.batchSize {
				start = end - e.batchSize + 1
			}
			envelopes, err := session.FetchEnvelopesBySeq(ctx, start, end)
			if err != nil {
				return fmt.Errorf("failed to fetch %d:%d: %w", start, end, err)
			}
			if len(envelopes) == 0 {
				break
			}
			if err := e.commitBatch(ctx, accountID, folderID, envelopes); err != nil {
				return err
			}
			if start == 1 {
				break
			}
			end = start - 1
		}

	case PlanIncremental:
		envelopes, err := session.FetchEnvelopesFromUID(ctx, plan.StartUID)
		if err != nil {
			return fmt.Errorf("failed to fetch %d:*: %w", plan.StartUID, err)
		}
		if len(envelopes) > 0 {
			if err := e.commitBatch(ctx, accountID, folderID, envelopes); err != nil {
				return err
			}
		}
	}
	return nil
}

// commitBatch writes one batch in a single transaction and publishes the
// affected ids so listeners see partial progress immediately.
func (e *Engine) commitBatch(ctx context.Context, accountID string, folderID int64, envelopes []domain.Email) error {
	ids, err := e.store.UpsertEnvelopes(ctx, accountID, folderID, envelopes)
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	e.bus.EmailsUpdated(accountID, ids)
	return nil
}
