package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"porthealth/internal/auth"
)

// openSQLite opens a store against a real SQLite file, exercising schema
// creation and the single-writer path.
func openSQLite(t *testing.T) *Store {
	t.Helper()

	st, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "porthealth.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUsers(t *testing.T, st *Store) {
	t.Helper()

	_, err := st.db.Exec(`INSERT INTO users (id, name, email, password, role) VALUES
		(1, 'Greene', 'greene@example.com', 'x', 'doctor'),
		(2, 'Pat', 'pat@example.com', 'x', 'patient')`)
	require.NoError(t, err)
}

func seedAppointment(t *testing.T, st *Store, id int64, at time.Time, reminded bool) {
	t.Helper()

	_, err := st.db.Exec(
		`INSERT INTO appointments (id, patient_id, doctor_id, datetime, reason, reminded) VALUES (?, 2, 1, ?, 'checkup', ?)`,
		id, at, reminded)
	require.NoError(t, err)
}

func TestSQLiteReminderWindow(t *testing.T) {
	st := openSQLite(t)
	seedUsers(t, st)

	now := time.Now().UTC()
	seedAppointment(t, st, 10, now.Add(30*time.Minute), false) // in window
	seedAppointment(t, st, 11, now.Add(90*time.Minute), false) // beyond window
	seedAppointment(t, st, 12, now.Add(30*time.Minute), true)  // already reminded
	seedAppointment(t, st, 13, now.Add(-5*time.Minute), false) // in the past

	due, err := st.DueAppointments(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(10), due[0].ID)
	assert.Equal(t, int64(2), due[0].PatientID)
	assert.Equal(t, int64(1), due[0].DoctorID)
	assert.Equal(t, "pat@example.com", due[0].PatientEmail)
	assert.Equal(t, "Pat", due[0].PatientName)
	assert.Equal(t, "Greene", due[0].DoctorName)
}

func TestSQLiteRemindedLatch(t *testing.T) {
	st := openSQLite(t)
	seedUsers(t, st)

	now := time.Now().UTC()
	seedAppointment(t, st, 10, now.Add(30*time.Minute), false)

	due, err := st.DueAppointments(context.Background(), now, time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, st.MarkReminded(context.Background(), []int64{10}))

	// The latch is one-way: the row never comes back.
	due, err = st.DueAppointments(context.Background(), now, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSQLiteMessageRoundTrip(t *testing.T) {
	st := openSQLite(t)
	seedUsers(t, st)

	ctx := context.Background()
	require.NoError(t, st.AppendMessage(ctx, 2, 1, "hello", "1-2"))
	require.NoError(t, st.AppendMessage(ctx, 1, 2, "hi back", "1-2"))

	msgs, err := st.History(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(2), msgs[0].From)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "1-2", msgs[0].Room)
	assert.Equal(t, "hi back", msgs[1].Content)

	byRoom, err := st.RoomMessages(ctx, "1-2")
	require.NoError(t, err)
	assert.Len(t, byRoom, 2)
}

func TestSQLiteContacts(t *testing.T) {
	st := openSQLite(t)
	seedUsers(t, st)
	seedAppointment(t, st, 10, time.Now().UTC().Add(time.Hour), false)

	ctx := context.Background()
	contacts, err := st.Contacts(ctx, 2, auth.RolePatient)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, Contact{ID: 1, Name: "Greene", Role: "doctor"}, contacts[0])

	contacts, err = st.Contacts(ctx, 1, auth.RoleDoctor)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Pat", contacts[0].Name)
}
