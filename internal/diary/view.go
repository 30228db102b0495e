package diary

import "mydiary/internal/models"

// Gate says which screen a client shows.
type Gate string

const (
	GateLoading   Gate = "loading"
	GateSignedOut Gate = "signed_out"
	GateSignedIn  Gate = "signed_in"
)

// View is an immutable copy of the workspace state. Entries and Draft are
// only filled in behind the signed-in gate. Stale means Entries no longer
// follow the store.
type View struct {
	Gate        Gate
	Identity    *models.Identity
	Tab         models.Tab
	Entries     []models.Entry
	Total       int
	Draft       models.Entry
	OverlayOpen bool
	Busy        bool
	Stale       bool
	Version     uint64
}
