package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/domain"
	"github.com/marek/maildock/internal/imap"
	"github.com/marek/maildock/internal/notify"
	"github.com/marek/maildock/internal/store"
	"github.com/marek/maildock/internal/store/sqlite"
)

const testAccountID = "acct-1"

// fakeServer plays the remote mailbox: a set of UIDs plus validity and
// watermark tokens. It implements imap.Session for a single folder.
type fakeServer struct {
	mu          gosync.Mutex
	uids        []uint32
	uidValidity uint32
	uidNext     uint32

	seqFetches  [][2]uint32
	uidFetches  []uint32
	fetchCount  int
	failFetchAt int // fail the nth envelope fetch, 0 = never

	signal chan struct{}
}

func newFakeServer(validity uint32, uids ...uint32) *fakeServer {
	next := uint32(1)
	for _, uid := range uids {
		if uid >= next {
			next = uid + 1
		}
	}
	return &fakeServer{
		uids:        uids,
		uidValidity: validity,
		uidNext:     next,
		signal:      make(chan struct{}, 1),
	}
}

func (f *fakeServer) addMessages(uids ...uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uid := range uids {
		f.uids = append(f.uids, uid)
		if uid >= f.uidNext {
			f.uidNext = uid + 1
		}
	}
}

func (f *fakeServer) envelope(uid uint32) domain.Email {
	return domain.Email{
		RemoteID:  uid,
		MessageID: fmt.Sprintf("<%d@example.com>", uid),
		Subject:   fmt.Sprintf("message %d", uid),
		Sender:    domain.Address{Name: "Sender", Addr: "sender@example.com"},
		Date:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Minute),
		Flags:     []string{"\\Seen"},
	}
}

func (f *fakeServer) SelectFolder(ctx context.Context, path string) (domain.FolderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.FolderState{
		UIDValidity: f.uidValidity,
		UIDNext:     f.uidNext,
		TotalCount:  uint32(len(f.uids)),
	}, nil
}

func (f *fakeServer) FetchEnvelopesBySeq(ctx context.Context, from, to uint32) ([]domain.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCount++
	f.seqFetches = append(f.seqFetches, [2]uint32{from, to})
	if f.failFetchAt == f.fetchCount {
		return nil, errors.New("connection reset")
	}

	if int(to) > len(f.uids) {
		to = uint32(len(f.uids))
	}
	var out []domain.Email
	for seq := from; seq <= to; seq++ {
		out = append(out, f.envelope(f.uids[seq-1]))
	}
	return out, nil
}

func (f *fakeServer) FetchEnvelopesFromUID(ctx context.Context, start uint32) ([]domain.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCount++
	f.uidFetches = append(f.uidFetches, start)
	if f.failFetchAt == f.fetchCount {
		return nil, errors.New("connection reset")
	}

	var out []domain.Email
	for _, uid := range f.uids {
		if uid >= start {
			out = append(out, f.envelope(uid))
		}
	}
	return out, nil
}

func (f *fakeServer) ListFolders(ctx context.Context) ([]imap.FolderInfo, error) {
	return []imap.FolderInfo{{Name: "INBOX", Path: "INBOX", Role: domain.RoleInbox}}, nil
}

func (f *fakeServer) Watch(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.signal:
		return nil
	}
}

func (f *fakeServer) FetchMessage(ctx context.Context, uid uint32) (*imap.Message, error) {
	return &imap.Message{BodyText: fmt.Sprintf("body of %d", uid)}, nil
}

func (f *fakeServer) Close() error { return nil }

type fakeSource struct {
	accts []accounts.Config
}

func (s *fakeSource) List() ([]accounts.Config, error) { return s.accts, nil }

func (s *fakeSource) Get(id string) (*accounts.Config, error) {
	for i := range s.accts {
		if s.accts[i].ID == id {
			acct := s.accts[i]
			return &acct, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", id, accounts.ErrNotFound)
}

func newTestEngine(t *testing.T, srv *fakeServer) (*Engine, store.Store) {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	source := &fakeSource{accts: []accounts.Config{{
		ID:        testAccountID,
		Provider:  accounts.ProviderIMAP,
		Email:     "user@example.com",
		Host:      "mail.example.com",
		Port:      993,
		CreatedAt: time.Now(),
	}}}
	dial := func(ctx context.Context, acct *accounts.Config) (imap.Session, error) {
		return srv, nil
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	eng := New(st, source, dial, notify.NewBus(), Options{
		BatchSize: 500,
		Backoff:   10 * time.Millisecond,
		Logger:    logger,
	})
	return eng, st
}

func inboxFolder(t *testing.T, st store.Store) *domain.Folder {
	t.Helper()
	folder, err := st.GetFolderByPath(context.Background(), testAccountID, "INBOX")
	if err != nil {
		t.Fatalf("failed to load folder: %v", err)
	}
	return folder
}

func seqUIDs(first, last uint32) []uint32 {
	uids := make([]uint32, 0, last-first+1)
	for uid := first; uid <= last; uid++ {
		uids = append(uids, uid)
	}
	return uids
}

func TestFullSyncDescendingWindows(t *testing.T) {
	srv := newFakeServer(7, seqUIDs(1, 1200)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	want := [][2]uint32{{701, 1200}, {201, 700}, {1, 200}}
	if len(srv.seqFetches) != len(want) {
		t.Fatalf("got %d windows %v, want %d", len(srv.seqFetches), srv.seqFetches, len(want))
	}
	for i, w := range want {
		if srv.seqFetches[i] != w {
			t.Errorf("window %d = %v, want %v", i, srv.seqFetches[i], w)
		}
	}

	folder := inboxFolder(t, st)
	if folder.UIDValidity != 7 || folder.UIDNext != 1201 {
		t.Errorf("checkpoint = (%d, %d), want (7, 1201)", folder.UIDValidity, folder.UIDNext)
	}
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1200 {
		t.Errorf("cached %d emails, want 1200", count)
	}
}

func TestFullSyncIsIdempotent(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 50)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	fetches := srv.fetchCount

	// Server state unchanged: the second pass must plan nothing.
	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if srv.fetchCount != fetches {
		t.Errorf("second pass fetched %d extra batches, want 0", srv.fetchCount-fetches)
	}

	count, err := st.CountEmails(ctx, inboxFolder(t, st).ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 50 {
		t.Errorf("cached %d emails after resync, want 50", count)
	}
}

func TestPartialFailureKeepsCheckpoint(t *testing.T) {
	srv := newFakeServer(3, seqUIDs(1, 1200)...)
	srv.failFetchAt = 2
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	// Folder failures are isolated, so the pass itself reports success.
	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	folder := inboxFolder(t, st)
	if folder.UIDValidity != 0 || folder.UIDNext != 0 {
		t.Errorf("checkpoint advanced to (%d, %d) despite failed pass", folder.UIDValidity, folder.UIDNext)
	}
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 500 {
		t.Errorf("cached %d emails from the committed window, want 500", count)
	}

	// The retry restarts the full pass and converges without duplicates.
	srv.failFetchAt = 0
	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	folder = inboxFolder(t, st)
	if folder.UIDNext != 1201 {
		t.Errorf("checkpoint uid_next = %d after retry, want 1201", folder.UIDNext)
	}
	count, err = st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1200 {
		t.Errorf("cached %d emails after retry, want 1200", count)
	}
}

func TestEmptyFolderRecordsCheckpoint(t *testing.T) {
	srv := newFakeServer(12)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if len(srv.seqFetches) != 0 || len(srv.uidFetches) != 0 {
		t.Errorf("empty folder triggered fetches: seq=%v uid=%v", srv.seqFetches, srv.uidFetches)
	}
	folder := inboxFolder(t, st)
	if folder.UIDValidity != 12 || folder.UIDNext != 1 {
		t.Errorf("checkpoint = (%d, %d), want (12, 1)", folder.UIDValidity, folder.UIDNext)
	}
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("cached %d emails in empty folder", count)
	}
}

func TestIncrementalFetchesOnlyNewMessages(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 100)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}
	srv.addMessages(101, 102, 103)
	srv.seqFetches = nil

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("incremental sync failed: %v", err)
	}

	if len(srv.seqFetches) != 0 {
		t.Errorf("incremental pass ran sequence fetches: %v", srv.seqFetches)
	}
	if len(srv.uidFetches) != 1 || srv.uidFetches[0] != 101 {
		t.Errorf("uid fetches = %v, want [101]", srv.uidFetches)
	}

	folder := inboxFolder(t, st)
	if folder.UIDNext != 104 {
		t.Errorf("checkpoint uid_next = %d, want 104", folder.UIDNext)
	}
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 103 {
		t.Errorf("cached %d emails, want 103", count)
	}
}

func TestValidityChangePurgesAndRefetches(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 20)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}

	// The server rebuilt the mailbox: new validity token, new UID space.
	srv.mu.Lock()
	srv.uidValidity = 2
	srv.uids = seqUIDs(1000, 1004)
	srv.uidNext = 1005
	srv.mu.Unlock()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("resync failed: %v", err)
	}

	folder := inboxFolder(t, st)
	if folder.UIDValidity != 2 || folder.UIDNext != 1005 {
		t.Errorf("checkpoint = (%d, %d), want (2, 1005)", folder.UIDValidity, folder.UIDNext)
	}
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 5 {
		t.Errorf("cached %d emails after purge, want 5", count)
	}
	if _, err := st.GetEmailByUID(ctx, folder.ID, 3); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stale email survived the purge: err = %v", err)
	}
}

func TestForceFullResyncRepairsDeletions(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 30)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}

	// The server expunged most messages. Incremental passes cannot see
	// deletions, so the stale rows stay until a forced full resync.
	srv.mu.Lock()
	srv.uids = []uint32{5, 10, 15}
	srv.mu.Unlock()

	if err := eng.TriggerSyncForAccount(ctx, testAccountID); err != nil {
		t.Fatalf("incremental sync failed: %v", err)
	}
	folder := inboxFolder(t, st)
	count, err := st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 30 {
		t.Fatalf("cached %d emails before repair, want 30 stale rows", count)
	}

	if err := eng.ForceFullResync(ctx, testAccountID, folder.ID); err != nil {
		t.Fatalf("forced resync failed: %v", err)
	}
	count, err = st.CountEmails(ctx, folder.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("cached %d emails after repair, want 3", count)
	}
}

func TestWatchStopsWhileBlocked(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 5)...)
	eng, _ := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.StartWatch(ctx, testAccountID); err != nil {
		t.Fatalf("start watch failed: %v", err)
	}
	if err := eng.StartWatch(ctx, testAccountID); !errors.Is(err, ErrWatchRunning) {
		t.Errorf("duplicate start returned %v, want ErrWatchRunning", err)
	}

	// Let the supervisor reach the blocking wait, then stop it. The stop
	// must complete promptly without any server response.
	time.Sleep(50 * time.Millisecond)
	eng.StopWatch(testAccountID)

	done := make(chan struct{})
	go func() {
		eng.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch supervisor did not stop after cancellation")
	}

	fetches := srv.fetchCount
	time.Sleep(50 * time.Millisecond)
	if srv.fetchCount != fetches {
		t.Error("supervisor kept fetching after stop")
	}
}

func TestWatchSignalTriggersResync(t *testing.T) {
	srv := newFakeServer(1, seqUIDs(1, 10)...)
	eng, st := newTestEngine(t, srv)
	ctx := context.Background()

	if err := eng.StartWatch(ctx, testAccountID); err != nil {
		t.Fatalf("start watch failed: %v", err)
	}
	defer func() {
		eng.StopWatch(testAccountID)
		eng.wg.Wait()
	}()

	waitForCount(t, st, 10)

	srv.addMessages(11, 12, 13)
	srv.signal <- struct{}{}

	waitForCount(t, st, 13)
}

func waitForCount(t *testing.T, st store.Store, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		folder, err := st.GetFolderByPath(context.Background(), testAccountID, "INBOX")
		if err == nil {
			count, err := st.CountEmails(context.Background(), folder.ID)
			if err == nil && count == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cache never reached %d emails", want)
}
