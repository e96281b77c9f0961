package store

// Schema for the embedded SQLite path. Postgres deployments run their own
// migrations; identity-column DDL is not portable between the two.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		theme TEXT DEFAULT 'light'
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
		doctor_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
		datetime TIMESTAMP NOT NULL,
		reason TEXT,
		reminded BOOLEAN DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_user INTEGER REFERENCES users(id) ON DELETE CASCADE,
		to_user INTEGER REFERENCES users(id) ON DELETE CASCADE,
		content TEXT,
		room TEXT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_reminded ON appointments(reminded, datetime)`,
}

func (s *Store) createSchema() error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
