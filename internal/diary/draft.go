package diary

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mydiary/internal/models"
)

const (
	dateLayout   = "2006-01-02"
	defaultTitle = "Untitled"
)

// Field names accepted by UpdateField.
const (
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldMood        = "mood"
	FieldDate        = "date"
	FieldIsFavorite  = "isFavorite"
	FieldIsLocked    = "isLocked"
	FieldImages      = "images"
	FieldAttachments = "attachments"
)

// EmptyDraft is the draft of a brand new entry.
func EmptyDraft() models.Entry {
	return models.Entry{
		Mood:        models.MoodNeutral,
		Images:      []models.Descriptor{},
		Attachments: []models.Descriptor{},
	}
}

// setField writes one attribute. Only the value's type is checked.
func setField(d *models.Entry, name string, value any) error {
	switch name {
	case FieldTitle, FieldContent, FieldDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s wants a string", ErrFieldType, name)
		}
		switch name {
		case FieldTitle:
			d.Title = s
		case FieldContent:
			d.Content = s
		default:
			d.Date = s
		}
	case FieldMood:
		var raw string
		switch v := value.(type) {
		case models.Mood:
			raw = string(v)
		case string:
			raw = v
		default:
			return fmt.Errorf("%w: mood wants a mood", ErrFieldType)
		}
		m, err := models.ParseMood(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFieldType, err)
		}
		d.Mood = m
	case FieldIsFavorite, FieldIsLocked:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %s wants a bool", ErrFieldType, name)
		}
		if name == FieldIsFavorite {
			d.IsFavorite = b
		} else {
			d.IsLocked = b
		}
	case FieldImages, FieldAttachments:
		ds, ok := value.([]models.Descriptor)
		if !ok {
			return fmt.Errorf("%w: %s wants descriptors", ErrFieldType, name)
		}
		cp := make([]models.Descriptor, len(ds))
		copy(cp, ds)
		if name == FieldImages {
			d.Images = cp
		} else {
			d.Attachments = cp
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return nil
}

// selected turns a persisted entry into a draft.
func selected(e models.Entry) models.Entry {
	d := e.Clone()
	if d.Images == nil {
		d.Images = []models.Descriptor{}
	}
	if d.Attachments == nil {
		d.Attachments = []models.Descriptor{}
	}
	return d
}

// NewImage describes a picked image. localRef is the client's handle for it.
func NewImage(name, url, localRef string) models.Descriptor {
	return models.Descriptor{ID: uuid.NewString(), Name: name, URL: url, LocalRef: localRef}
}

// NewAttachment describes a picked file of size bytes.
func NewAttachment(name string, size int64, localRef string) models.Descriptor {
	return models.Descriptor{ID: uuid.NewString(), Name: name, Size: FormatSize(size), LocalRef: localRef}
}

// FormatSize renders a byte count in kilobytes with one decimal.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
}

func removeDescriptor(ds []models.Descriptor, id string) []models.Descriptor {
	out := make([]models.Descriptor, 0, len(ds))
	for _, d := range ds {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// document builds the entry a save creates. The draft id is never carried
// over: saving always creates a new document.
func document(d models.Entry, owner *models.Identity, now time.Time) (models.Entry, error) {
	if isBlank(d.Title) && isBlank(d.Content) {
		return models.Entry{}, ErrEmptyDraft
	}
	if owner == nil {
		return models.Entry{}, ErrNotSignedIn
	}
	date, err := entryDate(d.Date, now)
	if err != nil {
		return models.Entry{}, err
	}

	body := selected(d)
	doc := models.Entry{
		OwnerID:     owner.ID,
		Title:       d.Title,
		Content:     d.Content,
		Mood:        d.Mood,
		Date:        date,
		Images:      body.Images,
		Attachments: body.Attachments,
		IsFavorite:  d.IsFavorite,
		IsLocked:    d.IsLocked,
	}
	if doc.Title == "" {
		doc.Title = defaultTitle
	}
	if doc.Mood == "" {
		doc.Mood = models.MoodNeutral
	}
	return doc, nil
}

// entryDate normalises the draft date to YYYY-MM-DD, defaulting to now's day.
func entryDate(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Format(dateLayout), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(now.Location()).Format(dateLayout), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
