package domain

import "time"

type Address struct {
	Name string
	Addr string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Addr
	}
	return a.Name + " <" + a.Addr + ">"
}

// Email is a cached message envelope. RemoteID is the server-assigned UID,
// unique within the folder's current validity epoch only. Subject, sender
// and date are immutable once cached; flags change on later syncs. Bodies
// and attachments are populated lazily on first read, not during bulk sync.
type Email struct {
	ID             int64
	AccountID      string
	FolderID       int64
	RemoteID       uint32
	MessageID      string
	Subject        string
	Sender         Address
	Date           time.Time
	Flags          []string
	HasAttachments bool
	BodyText       string
	BodyHTML       string
}

func (e *Email) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IsRead reports whether the server has marked the message seen.
func (e *Email) IsRead() bool {
	return e.HasFlag("\\Seen")
}

type Attachment struct {
	ID          int64
	EmailID     int64
	Filename    string
	MIMEType    string
	Size        int64
	ContentHash string
}
