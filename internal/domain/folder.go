package domain

import "strings"

// Role classifies well-known mailbox folders.
type Role string

const (
	RoleNone    Role = ""
	RoleInbox   Role = "inbox"
	RoleSent    Role = "sent"
	RoleDrafts  Role = "drafts"
	RoleTrash   Role = "trash"
	RoleSpam    Role = "spam"
	RoleArchive Role = "archive"
)

// Folder is a mirrored mailbox folder together with its sync checkpoint.
// UIDValidity, UIDNext and TotalCount record the last server state that was
// fully reconciled into the cache. A change in UIDValidity invalidates every
// cached UID for the folder; UIDNext never decreases within one validity
// epoch.
type Folder struct {
	ID          int64
	AccountID   string
	Name        string
	Path        string
	Role        Role
	UIDValidity uint32
	UIDNext     uint32
	TotalCount  uint32
}

// FolderState is the live folder metadata reported by the server when the
// folder is selected.
type FolderState struct {
	UIDValidity uint32
	UIDNext     uint32
	TotalCount  uint32
}

// DetectRole guesses a folder's role from its path. Servers that advertise
// special-use attributes take precedence; this is the name-based fallback.
func DetectRole(path string) Role {
	name := strings.ToLower(path)
	switch {
	case name == "inbox":
		return RoleInbox
	case strings.Contains(name, "sent"):
		return RoleSent
	case strings.Contains(name, "draft"):
		return RoleDrafts
	case strings.Contains(name, "trash") || strings.Contains(name, "deleted"):
		return RoleTrash
	case strings.Contains(name, "spam") || strings.Contains(name, "junk"):
		return RoleSpam
	case strings.Contains(name, "archive") || strings.Contains(name, "all mail"):
		return RoleArchive
	}
	return RoleNone
}
