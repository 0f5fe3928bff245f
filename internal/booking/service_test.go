package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/opdesk/clinic-queue/internal/clinictime"
	"github.com/opdesk/clinic-queue/internal/doctor"
	"github.com/opdesk/clinic-queue/internal/notify"
	"github.com/opdesk/clinic-queue/internal/queueboard"
	"github.com/opdesk/clinic-queue/internal/schedule"
)

type recordingDispatcher struct {
	sent []notify.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.sent = append(d.sent, n)
	return d.err
}

type recordingBoard struct {
	events []queueboard.Event
}

func (b *recordingBoard) Publish(evt queueboard.Event) {
	b.events = append(b.events, evt)
}

func newTestService(t *testing.T, doc *doctor.Doctor, now time.Time) (*Service, pgxmock.PgxPoolIface, *recordingDispatcher, *recordingBoard) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := NewRepository(mock)
	clock := clinictime.MustClock("UTC")
	dir := staticDirectory{doc.ID: doc}
	cfg := AllocatorConfig{Now: func() time.Time { return now }}
	alloc := NewAllocator(repo, dir, clock, cfg, nil, nil)

	dispatcher := &recordingDispatcher{}
	board := &recordingBoard{}
	svc := NewService(alloc, repo, dir, clock, dispatcher, board, nil, nil)
	return svc, mock, dispatcher, board
}

func TestBookFansOutNotificationAndBoardEvent(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, mock, dispatcher, board := newTestService(t, morningDoctor(), now)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	expectSnapshotReads(mock, pgxmock.NewRows(appointmentTestColumns))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("doc-1", testDate, ChannelAdvance).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyInsertAppointmentArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Book(context.Background(), ChannelAdvance, BookingRequest{
		DoctorID: "doc-1", PatientID: "pat-1", PatientEmail: "p@example.com", Date: testDate,
	})
	if err != nil {
		t.Fatalf("book failed: %v", err)
	}

	if len(dispatcher.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(dispatcher.sent))
	}
	n := dispatcher.sent[0]
	if n.TemplateKey != notify.TemplateBookingConfirmed || n.Fields["token"] != appt.Token() {
		t.Fatalf("unexpected notification: %#v", n)
	}
	if len(board.events) != 1 || board.events[0].Token != appt.Token() {
		t.Fatalf("unexpected board events: %#v", board.events)
	}
}

// A failed notification is logged, never surfaced: the booking already
// committed.
func TestBookSurvivesNotificationFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, mock, dispatcher, _ := newTestService(t, morningDoctor(), now)
	dispatcher.err = errors.New("smtp down")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	expectSnapshotReads(mock, pgxmock.NewRows(appointmentTestColumns))
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("doc-1", testDate, ChannelAdvance).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(0))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyInsertAppointmentArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if _, err := svc.Book(context.Background(), ChannelAdvance, BookingRequest{
		DoctorID: "doc-1", PatientID: "pat-1", Date: testDate,
	}); err != nil {
		t.Fatalf("book must not fail on a notification error: %v", err)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, mock, _, _ := newTestService(t, morningDoctor(), now)

	id := uuid.New()
	rows := pgxmock.NewRows(appointmentTestColumns)
	rows.AddRow(id, "doc-1", "pat-1", testDate, 0, 0, "9:00 AM",
		ChannelAdvance, 1, StatusCompleted, false, false, now, now)
	mock.ExpectQuery("SELECT id, doctor_id").WithArgs(id).WillReturnRows(rows)

	_, err := svc.UpdateStatus(context.Background(), id, StatusConfirmed, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from a terminal state, got %v", err)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, morningDoctor(), now)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), Status("vanished"), "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for an unknown status, got %v", err)
	}
}

func TestUpdateStatusCompletesAndPublishes(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, mock, dispatcher, board := newTestService(t, morningDoctor(), now)

	id := uuid.New()
	rows := pgxmock.NewRows(appointmentTestColumns)
	rows.AddRow(id, "doc-1", "pat-1", testDate, 0, 0, "9:00 AM",
		ChannelAdvance, 1, StatusConfirmed, false, false, now, now)
	mock.ExpectQuery("SELECT id, doctor_id").WithArgs(id).WillReturnRows(rows)
	mock.ExpectExec("UPDATE appointments").
		WithArgs(StatusCompleted, false, pgxmock.AnyArg(), id, StatusConfirmed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	appt, err := svc.UpdateStatus(context.Background(), id, StatusCompleted, "p@example.com")
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if appt.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", appt.Status)
	}
	if len(dispatcher.sent) != 1 || dispatcher.sent[0].TemplateKey != notify.TemplateStatusChanged {
		t.Fatalf("unexpected notifications: %#v", dispatcher.sent)
	}
	if len(board.events) != 1 || board.events[0].Status != string(StatusCompleted) {
		t.Fatalf("unexpected board events: %#v", board.events)
	}
}

// Declaring a 30-minute break over two booked slots extends the session by
// the two displaced slots, not the full break, and notifies the patients in
// the session.
func TestDeclareBreakPreciseExtension(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, mock, dispatcher, _ := newTestService(t, morningDoctor(), now)

	appts := pgxmock.NewRows(appointmentTestColumns)
	appointmentRow(appts, 0, 0, 1, ChannelAdvance, StatusConfirmed) // 9:00
	appointmentRow(appts, 0, 1, 2, ChannelAdvance, StatusConfirmed) // 9:15
	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs("doc-1", testDate).
		WillReturnRows(appts)
	mock.ExpectQuery("SELECT session_index, start_at, end_at").
		WithArgs("doc-1", testDate).
		WillReturnRows(pgxmock.NewRows([]string{"session_index", "start_at", "end_at"}))
	mock.ExpectExec("INSERT INTO break_periods").
		WithArgs(anyInsertBreakArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	adj, err := svc.DeclareBreak(context.Background(), DeclareBreakRequest{
		DoctorID: "doc-1", Date: testDate, SessionIndex: 0,
		Start: "9:00 AM", End: "9:30 AM",
	})
	if err != nil {
		t.Fatalf("declare break failed: %v", err)
	}
	if adj.TotalBreakMinutes != 30 {
		t.Fatalf("expected 30 break minutes, got %d", adj.TotalBreakMinutes)
	}
	if adj.ActualExtensionNeeded != 30 {
		t.Fatalf("expected 30 minutes of extension for two displaced slots, got %d", adj.ActualExtensionNeeded)
	}
	// Both booked patients sit in the declared session and get notified.
	if len(dispatcher.sent) != 2 {
		t.Fatalf("expected 2 break notifications, got %d", len(dispatcher.sent))
	}
	if dispatcher.sent[0].TemplateKey != notify.TemplateBreakDeclared {
		t.Fatalf("unexpected template: %s", dispatcher.sent[0].TemplateKey)
	}
}

// A break over empty slots costs nothing: no extension and no notifications.
func TestDeclareBreakNoDisplacement(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, mock, dispatcher, _ := newTestService(t, morningDoctor(), now)

	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs("doc-1", testDate).
		WillReturnRows(pgxmock.NewRows(appointmentTestColumns))
	mock.ExpectQuery("SELECT session_index, start_at, end_at").
		WithArgs("doc-1", testDate).
		WillReturnRows(pgxmock.NewRows([]string{"session_index", "start_at", "end_at"}))
	mock.ExpectExec("INSERT INTO break_periods").
		WithArgs(anyInsertBreakArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	adj, err := svc.DeclareBreak(context.Background(), DeclareBreakRequest{
		DoctorID: "doc-1", Date: testDate, SessionIndex: 0,
		Start: "9:00 AM", End: "9:30 AM",
	})
	if err != nil {
		t.Fatalf("declare break failed: %v", err)
	}
	if adj.ActualExtensionNeeded != 0 {
		t.Fatalf("expected no extension, got %d", adj.ActualExtensionNeeded)
	}
	if len(dispatcher.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(dispatcher.sent))
	}
}

func TestDeclareBreakRejectsOutOfRangeSession(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, morningDoctor(), now)

	_, err := svc.DeclareBreak(context.Background(), DeclareBreakRequest{
		DoctorID: "doc-1", Date: testDate, SessionIndex: 3,
		Start: "9:00 AM", End: "9:30 AM",
	})
	if !errors.Is(err, schedule.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestDeclareBreakRejectsInvertedWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, morningDoctor(), now)

	_, err := svc.DeclareBreak(context.Background(), DeclareBreakRequest{
		DoctorID: "doc-1", Date: testDate, SessionIndex: 0,
		Start: "9:30 AM", End: "9:00 AM",
	})
	if !errors.Is(err, schedule.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

// 38 elapsed minutes, one patient done at 15 minutes each, no breaks:
// 38 - 15 = 23 minutes behind.
func TestEstimateDelay(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 38, 0, 0, time.UTC)
	doc := morningDoctor()
	doc.ConsultationStatus = schedule.ConsultationIn
	svc, mock, _, _ := newTestService(t, doc, now)

	mock.ExpectQuery("COUNT").
		WithArgs("doc-1", testDate, 0, StatusCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"completed", "placeholders"}).AddRow(1, 0))
	mock.ExpectQuery("SELECT session_index, start_at, end_at").
		WithArgs("doc-1", testDate).
		WillReturnRows(pgxmock.NewRows([]string{"session_index", "start_at", "end_at"}))

	delay, err := svc.EstimateDelay(context.Background(), "doc-1", testDate, 0)
	if err != nil {
		t.Fatalf("estimate delay failed: %v", err)
	}
	if delay != 23 {
		t.Fatalf("expected 23 minutes of delay, got %d", delay)
	}
}

func TestDaySchedule(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 20, 0, 0, time.UTC)
	svc, mock, _, _ := newTestService(t, morningDoctor(), now)

	appts := pgxmock.NewRows(appointmentTestColumns)
	appointmentRow(appts, 0, 2, 1, ChannelAdvance, StatusConfirmed)
	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs("doc-1", testDate).
		WillReturnRows(appts)
	mock.ExpectQuery("SELECT session_index, start_at, end_at").
		WithArgs("doc-1", testDate).
		WillReturnRows(pgxmock.NewRows([]string{"session_index", "start_at", "end_at"}))

	views, err := svc.DaySchedule(context.Background(), "doc-1", testDate)
	if err != nil {
		t.Fatalf("day schedule failed: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(views))
	}

	// 9:00 and 9:15 are gone, 9:30 is booked, and with two future slots the
	// 15% reserve rounds up to one: the 9:45 tail is held for walk-ins.
	wantStates := []string{"past", "past", "booked", "walkin_reserved"}
	for i, want := range wantStates {
		if views[i].State != want {
			t.Fatalf("slot %d: expected %s, got %s (views: %#v)", i, want, views[i].State, views)
		}
	}
	if views[2].Token != "A1" {
		t.Fatalf("expected token A1 on the booked slot, got %q", views[2].Token)
	}
}
