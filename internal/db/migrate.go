package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// EntriesChannel is the NOTIFY channel carrying the owner id of a changed entry.
const EntriesChannel = "diary_entries"

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT,
    display_name TEXT,
    photo_url TEXT,
    provider TEXT NOT NULL DEFAULT 'password',
    provider_subject TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (provider, provider_subject)
);

CREATE TABLE IF NOT EXISTS entries (
    id UUID PRIMARY KEY,
    seq BIGSERIAL,
    owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    mood TEXT NOT NULL DEFAULT 'neutral' CHECK (mood IN ('happy', 'neutral', 'sad')),
    entry_date TEXT NOT NULL,
    images JSONB NOT NULL DEFAULT '[]',
    attachments JSONB NOT NULL DEFAULT '[]',
    is_favorite BOOLEAN NOT NULL DEFAULT false,
    is_locked BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);

CREATE INDEX IF NOT EXISTS entries_owner_created_idx ON entries (owner_id, created_at DESC, seq DESC);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Every write announces the affected owner so live queries can refetch.
	trigger := `
CREATE OR REPLACE FUNCTION notify_diary_entries() RETURNS trigger AS $$
BEGIN
    IF TG_OP = 'DELETE' THEN
        PERFORM pg_notify('` + EntriesChannel + `', OLD.owner_id::text);
        RETURN OLD;
    END IF;
    PERFORM pg_notify('` + EntriesChannel + `', NEW.owner_id::text);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DO $$ BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'entries_notify') THEN
        CREATE TRIGGER entries_notify
            AFTER INSERT OR UPDATE OR DELETE ON entries
            FOR EACH ROW EXECUTE FUNCTION notify_diary_entries();
    END IF;
END $$;`
	_, err := db.ExecContext(ctx, trigger)
	return err
}
