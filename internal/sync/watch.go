package sync

import (
	"context"
	"errors"
	"time"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/domain"
)

// ErrWatchRunning is returned when a watch supervisor already exists for
// the account.
var ErrWatchRunning = errors.New("watch supervisor already running for account")

// primaryFolder is the folder each watch connection monitors for pushed
// changes. Other folders are covered by the periodic sweep.
const primaryFolder = "INBOX"

// StartWatch launches the watch supervisor for an account. At most one
// supervisor runs per account; a second call returns ErrWatchRunning.
func (e *Engine) StartWatch(ctx context.Context, accountID string) error {
	e.mu.Lock()
	if _, ok := e.watchers[accountID]; ok {
		e.mu.Unlock()
		return ErrWatchRunning
	}
	watchCtx, cancel := context.WithCancel(ctx)
	e.watchers[accountID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.watchers, accountID)
			e.mu.Unlock()
		}()
		e.watchLoop(watchCtx, accountID)
	}()
	return nil
}

// StopWatch cancels the account's watch supervisor, if any. The
// supervisor exits promptly even while blocked waiting on the server.
func (e *Engine) StopWatch(accountID string) {
	e.mu.Lock()
	cancel, ok := e.watchers[accountID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// watchLoop keeps one watch connection alive, reconnecting after a fixed
// delay on every failure. It never gives up on transient errors; it stops
// only on cancellation or when the account no longer exists.
func (e *Engine) watchLoop(ctx context.Context, accountID string) {
	log := e.log.WithField("account", accountID)
	log.Info("watch supervisor started")

	for {
		err := e.watchOnce(ctx, accountID)
		switch {
		case ctx.Err() != nil:
			log.Info("watch supervisor stopped")
			return
		case errors.Is(err, accounts.ErrNotFound):
			log.Info("account removed, stopping watch supervisor")
			return
		default:
			log.WithError(err).Warnf("watch connection lost, reconnecting in %s", e.backoff)
		}

		select {
		case <-ctx.Done():
			log.Info("watch supervisor stopped")
			return
		case <-time.After(e.backoff):
		}
	}
}

// watchOnce runs one connection lifetime: connect, then alternate between
// syncing the primary folder and blocking until the server pushes a
// change. Any error tears the connection down and returns for backoff.
func (e *Engine) watchOnce(ctx context.Context, accountID string) error {
	acct, err := e.accounts.Get(accountID)
	if err != nil {
		return err
	}

	session, err := e.dial(ctx, acct)
	if err != nil {
		return err
	}
	defer session.Close()

	for {
		state, err := session.SelectFolder(ctx, primaryFolder)
		if err != nil {
			return err
		}
		if err := e.syncFolderWithState(ctx, session, acct.ID, primaryFolder, domain.RoleInbox, state); err != nil {
			return err
		}
		e.bus.EmailsUpdated(acct.ID, nil)

		if err := session.Watch(ctx); err != nil {
			return err
		}
	}
}
