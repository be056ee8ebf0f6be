package relay

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// =======================
// EVENT LOG (OPTIONAL)
// =======================

// EventRecorder receives session lifecycle events. A nil recorder
// disables logging entirely; recording must never block or fail the
// relay, so implementations swallow their own errors.
type EventRecorder interface {
	Record(kind, sessionID, hostKey, clientAddress string)
}

// EventDB is the slice of pgxpool.Pool the recorder uses.
type EventDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGEventLog writes lifecycle events to the relay_events table.
//
//	CREATE TABLE relay_events (
//	    id          bigserial PRIMARY KEY,
//	    kind        text NOT NULL,
//	    session_id  text NOT NULL,
//	    host_key    text,
//	    client_addr text,
//	    created_at  timestamptz NOT NULL DEFAULT now()
//	);
type PGEventLog struct {
	DB EventDB
}

func (l *PGEventLog) Record(kind, sessionID, hostKey, clientAddress string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := l.DB.Exec(ctx, `
		INSERT INTO relay_events (kind, session_id, host_key, client_addr)
		VALUES ($1, $2, $3, $4)
	`, kind, sessionID, hostKey, clientAddress)
	if err != nil {
		log.Println("relay: event log insert failed:", err)
	}
}
