package store

import (
	"sync"
	"time"

	"tankwars/logging"
)

const (
	eventJoin = iota
	eventKill
	eventLeave
)

const (
	recorderQueue = 1024
	batchSize     = 50
	flushEvery    = 5 * time.Second
)

type event struct {
	kind   int
	conn   string // joiner, shooter or leaver
	other  string // victim
	tankID int
	name   string
	score  int
	beam   bool
	tick   uint64
	at     time.Time
}

// Recorder writes match events to the database in batches from a
// background goroutine. Its methods never block the caller; events are
// dropped when the queue is full. A nil *Recorder ignores everything.
type Recorder struct {
	db     *DB
	events chan event
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewRecorder(db *DB) *Recorder {
	r := &Recorder{
		db:     db,
		events: make(chan event, recorderQueue),
		stop:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Join starts a session for a connection's new tank.
func (r *Recorder) Join(conn string, tankID int, name string) {
	r.track(event{kind: eventJoin, conn: conn, tankID: tankID, name: name})
}

// Kill credits shooter and debits victim.
func (r *Recorder) Kill(shooter, victim string, beam bool, tick uint64) {
	r.track(event{kind: eventKill, conn: shooter, other: victim, beam: beam, tick: tick})
}

// Leave closes a session with the tank's final score.
func (r *Recorder) Leave(conn string, score int) {
	r.track(event{kind: eventLeave, conn: conn, score: score})
}

func (r *Recorder) track(e event) {
	if r == nil {
		return
	}
	e.at = time.Now().UTC()
	select {
	case r.events <- e:
	default:
		logging.Log.Warnw("recorder queue full, dropping event", "kind", e.kind, "conn", e.conn)
	}
}

// Stop flushes queued events and ends the writer.
func (r *Recorder) Stop() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]event, 0, batchSize)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.events:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			batch = append(batch, r.pending()...)
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

// pending drains whatever is queued without waiting.
func (r *Recorder) pending() []event {
	var out []event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func (r *Recorder) flush(events []event) {
	tx, err := r.db.conn.Begin()
	if err != nil {
		logging.Log.Errorw("recorder begin", "err", err)
		return
	}
	defer tx.Rollback()

	for _, e := range events {
		at := e.at.Format(time.RFC3339)
		switch e.kind {
		case eventJoin:
			_, err = tx.Exec(`INSERT INTO sessions (conn_id, tank_id, name, joined_at) VALUES (?, ?, ?, ?)`,
				e.conn, e.tankID, e.name, at)
		case eventKill:
			if _, err = tx.Exec(`UPDATE sessions SET kills = kills + 1, score = score + 1 WHERE conn_id = ?`, e.conn); err != nil {
				break
			}
			if _, err = tx.Exec(`UPDATE sessions SET deaths = deaths + 1 WHERE conn_id = ?`, e.other); err != nil {
				break
			}
			_, err = tx.Exec(`INSERT INTO kills (shooter_conn, victim_conn, beam, tick, created_at) VALUES (?, ?, ?, ?, ?)`,
				e.conn, e.other, e.beam, int64(e.tick), at)
		case eventLeave:
			_, err = tx.Exec(`UPDATE sessions SET score = ?, left_at = ? WHERE conn_id = ?`, e.score, at, e.conn)
		}
		if err != nil {
			logging.Log.Errorw("recorder write", "kind", e.kind, "conn", e.conn, "err", err)
		}
	}
	if err := tx.Commit(); err != nil {
		logging.Log.Errorw("recorder commit", "err", err)
	}
}
