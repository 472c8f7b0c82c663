package imap

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/marek/maildock/internal/accounts"
	"github.com/marek/maildock/internal/domain"
)

type client struct {
	c       *imapclient.Client
	updates chan struct{}
}

// Dial connects to the account's IMAP endpoint, authenticates and returns a
// Session. Google accounts authenticate with OAUTHBEARER, plain IMAP
// accounts with LOGIN.
func Dial(_ context.Context, acct *accounts.Config) (Session, error) {
	host, port := acct.Endpoint()
	addr := fmt.Sprintf("%s:%d", host, port)

	s := &client{updates: make(chan struct{}, 1)}
	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(*imapclient.UnilateralDataMailbox) { s.notify() },
			Expunge: func(uint32) { s.notify() },
			Fetch:   func(*imapclient.FetchMessageData) { s.notify() },
		},
	}

	encryption := acct.Encryption
	if acct.Provider == accounts.ProviderGoogle {
		encryption = accounts.EncryptionTLS
	}

	var c *imapclient.Client
	var err error
	switch encryption {
	case accounts.EncryptionTLS:
		c, err = imapclient.DialTLS(addr, opts)
	case accounts.EncryptionStartTLS:
		c, err = imapclient.DialStartTLS(addr, opts)
	case accounts.EncryptionNone:
		c, err = imapclient.DialInsecure(addr, opts)
	default:
		return nil, fmt.Errorf("unknown encryption mode %q", encryption)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	s.c = c

	if err := s.login(acct, host, port); err != nil {
		_ = c.Logout().Wait()
		return nil, err
	}
	return s, nil
}

func (s *client) login(acct *accounts.Config, host string, port int) error {
	if acct.Provider == accounts.ProviderGoogle {
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: acct.Email,
			Token:    acct.AccessToken,
			Host:     host,
			Port:     port,
		})
		if err := s.c.Authenticate(saslClient); err != nil {
			return fmt.Errorf("oauth authentication failed for %s: %w", acct.Email, err)
		}
		return nil
	}
	if err := s.c.Login(acct.LoginUsername(), acct.Password).Wait(); err != nil {
		return fmt.Errorf("login failed for %s: %w", acct.Email, err)
	}
	return nil
}

// notify records a pending server-side change without blocking the reader
// goroutine. Multiple notifications coalesce into one.
func (s *client) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *client) SelectFolder(_ context.Context, path string) (domain.FolderState, error) {
	data, err := s.c.Select(path, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return domain.FolderState{}, fmt.Errorf("failed to select folder %s: %w", path, err)
	}
	state := domain.FolderState{
		UIDValidity: data.UIDValidity,
		UIDNext:     uint32(data.UIDNext),
		TotalCount:  data.NumMessages,
	}
	return state, nil
}

var envelopeFetchOptions = &imap.FetchOptions{
	Envelope: true,
	Flags:    true,
	UID:      true,
}

func (s *client) FetchEnvelopesBySeq(_ context.Context, from, to uint32) ([]domain.Email, error) {
	var seqSet imap.SeqSet
	seqSet.AddRange(from, to)
	return s.fetchEnvelopes(seqSet)
}

func (s *client) FetchEnvelopesFromUID(_ context.Context, start uint32) ([]domain.Email, error) {
	var uidSet imap.UIDSet
	uidSet.AddRange(imap.UID(start), 0) // 0 stands for '*'
	return s.fetchEnvelopes(uidSet)
}

func (s *client) fetchEnvelopes(numSet imap.NumSet) ([]domain.Email, error) {
	fetchCmd := s.c.Fetch(numSet, envelopeFetchOptions)
	defer fetchCmd.Close()

	var envelopes []domain.Email
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("failed to collect message: %w", err)
		}
		envelopes = append(envelopes, envelopeFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch envelopes: %w", err)
	}
	return envelopes, nil
}

func (s *client) ListFolders(_ context.Context) ([]FolderInfo, error) {
	listCmd := s.c.List("", "*", nil)
	mailboxes, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	var folders []FolderInfo
	for _, mbox := range mailboxes {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		folders = append(folders, FolderInfo{
			Name: mbox.Mailbox,
			Path: mbox.Mailbox,
			Role: roleFromAttrs(mbox.Attrs, mbox.Mailbox),
		})
	}
	return folders, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

// roleFromAttrs maps RFC 6154 special-use attributes to a role, falling
// back to name-based detection for servers that don't advertise them.
func roleFromAttrs(attrs []imap.MailboxAttr, path string) domain.Role {
	for _, attr := range attrs {
		switch attr {
		case imap.MailboxAttrSent:
			return domain.RoleSent
		case imap.MailboxAttrDrafts:
			return domain.RoleDrafts
		case imap.MailboxAttrTrash:
			return domain.RoleTrash
		case imap.MailboxAttrJunk:
			return domain.RoleSpam
		case imap.MailboxAttrArchive, imap.MailboxAttrAll:
			return domain.RoleArchive
		}
	}
	return domain.DetectRole(path)
}

// Watch issues IDLE and blocks until the server reports a change in the
// selected folder or ctx is cancelled. The cancellation race is explicit:
// ctx always wins, even when the server connection has gone silent.
func (s *client) Watch(ctx context.Context) error {
	idleCmd, err := s.c.Idle()
	if err != nil {
		return fmt.Errorf("failed to start idle: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = idleCmd.Close()
		<-done
		return ctx.Err()
	case <-s.updates:
		if err := idleCmd.Close(); err != nil {
			return fmt.Errorf("failed to stop idle: %w", err)
		}
		return <-done
	case err := <-done:
		// Idle ended on its own: connection dropped or server terminated it.
		if err != nil {
			return fmt.Errorf("idle terminated: %w", err)
		}
		return errors.New("idle terminated by server")
	}
}

func (s *client) FetchMessage(_ context.Context, uid uint32) (*Message, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message uid %d not found", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("failed to collect message uid %d: %w", uid, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch message uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message uid %d has no body section", uid)
	}
	return parseMessage(raw), nil
}

func (s *client) Close() error {
	return s.c.Logout().Wait()
}

// envelopeFromBuffer converts a fetched message into a domain envelope.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) domain.Email {
	env := domain.Email{RemoteID: uint32(buf.UID)}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			env.Sender = domain.Address{Name: from.Name, Addr: from.Addr()}
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}
	return env
}
