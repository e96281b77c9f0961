package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"porthealth/internal/chat"
	"porthealth/internal/store"
)

// AppointmentStore is the slice of the message store the dispatcher needs:
// scanning the reminder window and flipping the reminded latch.
type AppointmentStore interface {
	DueAppointments(ctx context.Context, now time.Time, window time.Duration) ([]store.DueAppointment, error)
	MarkReminded(ctx context.Context, ids []int64) error
}

// Pusher delivers a frame to a user's live connection, if any.
type Pusher interface {
	Push(userID int64, v interface{}) error
}

// Mailer is the optional email side-channel.
type Mailer interface {
	Send(to, subject, body string) error
}

// Dispatcher scans upcoming appointments on a fixed interval and pushes
// reminders through the live-connection registry and, when configured, over
// email. Every row in a batch is marked reminded after its delivery attempt,
// whether or not the attempt succeeded: the latch records "this window was
// attempted", not "the user was reached". One attempt per appointment, ever.
type Dispatcher struct {
	store    AppointmentStore
	pusher   Pusher
	mailer   Mailer // nil when SMTP is not configured
	interval time.Duration
	window   time.Duration
	logger   *zap.Logger

	running atomic.Bool
}

func NewDispatcher(st AppointmentStore, pusher Pusher, mailer Mailer, interval, window time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		pusher:   pusher,
		mailer:   mailer,
		interval: interval,
		window:   window,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled. Ticks are independent: a failed
// tick is logged and the next one runs normally.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("reminder dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Duration("window", d.window),
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// dispatch starts one tick in the background. Ticks are non-reentrant: if
// the previous tick is still running this one is skipped, so a slow tick
// never piles up concurrent scans over the same rows.
func (d *Dispatcher) dispatch(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("previous reminder tick still running, skipping tick")
		return
	}
	go func() {
		defer d.running.Store(false)
		d.tick(ctx)
	}()
}

// tick processes one reminder batch: scan, deliver per row concurrently,
// then flip the latch for the whole batch. The latch write happens only
// after every row's delivery attempts have finished.
func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now()
	due, err := d.store.DueAppointments(ctx, now, d.window)
	if err != nil {
		d.logger.Error("failed to scan due appointments", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	// Rows are independent; a slow SMTP server for one patient must not
	// delay the others in the batch.
	var wg sync.WaitGroup
	for _, appt := range due {
		wg.Add(1)
		go func(a store.DueAppointment) {
			defer wg.Done()
			d.remind(a)
		}(appt)
	}
	wg.Wait()

	ids := make([]int64, len(due))
	for i, appt := range due {
		ids[i] = appt.ID
	}
	if err := d.store.MarkReminded(ctx, ids); err != nil {
		d.logger.Error("failed to mark appointments reminded", zap.Int64s("ids", ids), zap.Error(err))
		return
	}

	d.logger.Info("reminder batch processed", zap.Int("appointments", len(ids)))
}

// remind handles one appointment: email to the patient, live pushes to both
// participants. Failures are logged per recipient and never escalate.
func (d *Dispatcher) remind(a store.DueAppointment) {
	when := a.At.Format("Mon, Jan 2 2006 at 3:04 PM")
	patientText := fmt.Sprintf("Dear %s, this is a reminder of your appointment with Dr. %s at %s.",
		a.PatientName, a.DoctorName, when)

	if d.mailer != nil {
		if err := d.mailer.Send(a.PatientEmail, "Appointment Reminder", patientText); err != nil {
			d.logger.Warn("reminder email failed",
				zap.Int64("appointment_id", a.ID),
				zap.String("to", a.PatientEmail),
				zap.Error(err),
			)
		}
	} else {
		d.logger.Info("email disabled, reminder logged only",
			zap.String("to", a.PatientEmail),
			zap.String("reminder", patientText),
		)
	}

	d.push(a.PatientID, "Reminder: "+patientText)
	d.push(a.DoctorID, fmt.Sprintf("Reminder: You have an upcoming appointment with %s at %s.",
		a.PatientName, when))
}

func (d *Dispatcher) push(userID int64, message string) {
	err := d.pusher.Push(userID, chat.NewReminderFrame(message))
	if err == nil || errors.Is(err, chat.ErrNotConnected) {
		// An offline recipient is a normal outcome, not a failure.
		return
	}
	d.logger.Warn("reminder push failed", zap.Int64("user_id", userID), zap.Error(err))
}
