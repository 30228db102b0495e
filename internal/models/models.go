package models

import (
	"fmt"
	"time"
)

type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
)

// ParseMood accepts only the three known moods.
func ParseMood(s string) (Mood, error) {
	switch m := Mood(s); m {
	case MoodHappy, MoodNeutral, MoodSad:
		return m, nil
	}
	return "", fmt.Errorf("unknown mood %q", s)
}

type Tab string

const (
	TabAll       Tab = "all"
	TabFavorites Tab = "favorites"
	TabSettings  Tab = "settings"
)

func ParseTab(s string) (Tab, error) {
	switch t := Tab(s); t {
	case TabAll, TabFavorites, TabSettings:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q", s)
}

// Descriptor describes an image or attachment attached to an entry.
// LocalRef points at a client-side file handle and is never persisted.
type Descriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Size     string `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
	LocalRef string `json:"-"`
}

type Entry struct {
	ID          string       `json:"id,omitempty"`
	OwnerID     string       `json:"ownerId,omitempty"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Mood        Mood         `json:"mood"`
	Date        string       `json:"date"` // YYYY-MM-DD
	Images      []Descriptor `json:"images"`
	Attachments []Descriptor `json:"attachments"`
	IsFavorite  bool         `json:"isFavorite"`
	IsLocked    bool         `json:"isLocked"`
	CreatedAt   time.Time    `json:"createdAt,omitzero"`
}

// Clone returns a copy that shares no slices with e.
func (e Entry) Clone() Entry {
	out := e
	out.Images = cloneDescriptors(e.Images)
	out.Attachments = cloneDescriptors(e.Attachments)
	return out
}

func cloneDescriptors(in []Descriptor) []Descriptor {
	if in == nil {
		return nil
	}
	out := make([]Descriptor, len(in))
	copy(out, in)
	return out
}

// Identity is the authenticated user as seen by a session.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type User struct {
	ID              string    `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    *string   `db:"password_hash" json:"-"`
	DisplayName     *string   `db:"display_name" json:"display_name,omitempty"`
	PhotoURL        *string   `db:"photo_url" json:"photo_url,omitempty"`
	Provider        string    `db:"provider" json:"provider"`
	ProviderSubject *string   `db:"provider_subject" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Identity projects the user onto the fields a session exposes.
func (u User) Identity() *Identity {
	id := &Identity{ID: u.ID, Email: u.Email}
	if u.DisplayName != nil {
		id.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		id.PhotoURL = *u.PhotoURL
	}
	return id
}
