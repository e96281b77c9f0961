package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	// Drivers are selected by configuration; sqlite3 is the embedded
	// default, postgres matches hosted deployments.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"porthealth/internal/auth"
)

// Supported driver names, as passed to sql.Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var ErrClosed = errors.New("store is closed")

// StoredMessage is one persisted chat message.
type StoredMessage struct {
	ID        int64     `json:"id"`
	From      int64     `json:"from_user"`
	To        int64     `json:"to_user"`
	Content   string    `json:"content"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

// DueAppointment is an appointment row inside the reminder window, joined
// with the names and email the dispatcher needs to compose notifications.
type DueAppointment struct {
	ID           int64
	At           time.Time
	PatientID    int64
	DoctorID     int64
	PatientEmail string
	PatientName  string
	DoctorName   string
}

// Contact is a chat counterpart derived from shared appointments.
type Contact struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Store persists messages and reads/updates appointment reminder state over
// database/sql. SQLite writes are serialized through a single goroutine,
// since concurrent writers contend on the database file; Postgres writes go
// straight to the pool.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger

	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Open connects to the configured database and, for the embedded SQLite
// path, creates the schema. Postgres deployments manage schema externally.
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := New(db, driver, logger)
	if driver == DriverSQLite {
		if err := s.createSchema(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return s, nil
}

// New wraps an existing connection. Used by Open and by tests.
func New(db *sql.DB, driver string, logger *zap.Logger) *Store {
	s := &Store{
		db:       db,
		driver:   driver,
		logger:   logger,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}
	if driver == DriverSQLite {
		s.wg.Add(1)
		go s.writeLoop()
	}
	return s
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.fn(s.db)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	query = s.rebind(query)

	if s.driver != DriverSQLite {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	op := writeOp{fn: func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, query, args...)
		return err
	}, result: result}

	select {
	case s.writeCh <- op:
	case <-s.shutdown:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rebind rewrites ? placeholders to the $N form Postgres expects. Queries
// are written once, in the ? style both SQLite and the mock driver accept.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppendMessage durably appends one chat message with a server timestamp.
func (s *Store) AppendMessage(ctx context.Context, from, to int64, content, room string) error {
	const q = `INSERT INTO messages (from_user, to_user, content, room, timestamp) VALUES (?, ?, ?, ?, ?)`
	return s.exec(ctx, q, from, to, content, room, time.Now().UTC())
}

// DueAppointments returns unreminded appointments starting within the window
// after now, with the participant details reminders are composed from.
func (s *Store) DueAppointments(ctx context.Context, now time.Time, window time.Duration) ([]DueAppointment, error) {
	const q = `
		SELECT a.id, a.datetime, a.patient_id, a.doctor_id, u.email, u.name, d.name
		FROM appointments a
		JOIN users u ON a.patient_id = u.id
		JOIN users d ON a.doctor_id = d.id
		WHERE a.datetime > ? AND a.datetime <= ? AND a.reminded = ?`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), now, now.Add(window), false)
	if err != nil {
		return nil, fmt.Errorf("failed to query due appointments: %w", err)
	}
	defer rows.Close()

	var due []DueAppointment
	for rows.Next() {
		var a DueAppointment
		if err := rows.Scan(&a.ID, &a.At, &a.PatientID, &a.DoctorID, &a.PatientEmail, &a.PatientName, &a.DoctorName); err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		due = append(due, a)
	}
	return due, rows.Err()
}

// MarkReminded flips the reminded latch for a batch of appointments. The
// latch is one-way; rows are never re-selected once flipped, even when the
// reminder delivery itself failed.
func (s *Store) MarkReminded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	q := fmt.Sprintf(`UPDATE appointments SET reminded = ? WHERE id IN (%s)`, placeholders)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, true)
	for _, id := range ids {
		args = append(args, id)
	}
	return s.exec(ctx, q, args...)
}

// History returns the conversation between two users, both directions, in
// timestamp order.
func (s *Store) History(ctx context.Context, a, b int64) ([]StoredMessage, error) {
	const q = `
		SELECT id, from_user, to_user, content, room, timestamp
		FROM messages
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY timestamp ASC, id ASC`
	return s.queryMessages(ctx, q, a, b, b, a)
}

// RoomMessages returns every message in a conversation room in timestamp order.
func (s *Store) RoomMessages(ctx context.Context, room string) ([]StoredMessage, error) {
	const q = `
		SELECT id, from_user, to_user, content, room, timestamp
		FROM messages
		WHERE room = ?
		ORDER BY timestamp ASC, id ASC`
	return s.queryMessages(ctx, q, room)
}

func (s *Store) queryMessages(ctx context.Context, q string, args ...interface{}) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &m.Room, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Contacts lists the chat counterparts a user shares appointments with:
// doctors for a patient, patients for a doctor.
func (s *Store) Contacts(ctx context.Context, userID int64, role auth.Role) ([]Contact, error) {
	var q string
	switch role {
	case auth.RolePatient:
		q = `SELECT DISTINCT d.id, d.name, d.role FROM appointments a JOIN users d ON a.doctor_id = d.id WHERE a.patient_id = ?`
	case auth.RoleDoctor:
		q = `SELECT DISTINCT p.id, p.name, p.role FROM appointments a JOIN users p ON a.patient_id = p.id WHERE a.doctor_id = ?`
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Role); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Ping reports database reachability, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the writer and closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
