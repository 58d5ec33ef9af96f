package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/notify"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	store         *repository.MemoryStore
	clock         *testClock
	events        *EventService
	users         *UserService
	registrations *RegistrationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	sink := notify.NewStoreSink(store.Repos().Notifications, clock.Now)
	return &testEnv{
		store:         store,
		clock:         clock,
		events:        NewEventService(store, clock.Now),
		users:         NewUserService(store, sink, clock.Now),
		registrations: NewRegistrationService(store, sink, clock.Now),
	}
}

func (e *testEnv) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), model.CreateUserRequest{Name: "Resident", Email: email})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) createEvent(t *testing.T, startsIn time.Duration, capacity int) *model.Event {
	t.Helper()
	ev, err := e.events.CreateEvent(context.Background(), model.CreateEventRequest{
		Name:     "Garden cleanup",
		StartsAt: e.clock.now.Add(startsIn),
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func (e *testEnv) register(t *testing.T, eventID, userID string) *model.Registration {
	t.Helper()
	reg, err := e.registrations.Register(context.Background(), eventID, model.RegisterRequest{UserID: userID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func (e *testEnv) markAttendance(t *testing.T, regID string, a model.Attendance) {
	t.Helper()
	if _, err := e.registrations.UpdateAttendance(context.Background(), regID, model.AttendanceRequest{Attendance: a}); err != nil {
		t.Fatalf("mark %s: %v", a, err)
	}
}

func (e *testEnv) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := e.store.Repos().Users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u
}

func (e *testEnv) titles(t *testing.T, userID string) []string {
	t.Helper()
	got, err := e.store.Repos().Notifications.ListByUser(context.Background(), userID, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	out := make([]string, 0, len(got))
	for i := len(got) - 1; i >= 0; i-- {
		out = append(out, got[i].Title)
	}
	return out
}

func TestCreateEvent_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	starts := env.clock.now.Add(time.Hour)
	tests := []struct {
		name string
		req  model.CreateEventRequest
	}{
		{name: "blank name", req: model.CreateEventRequest{Name: "  ", StartsAt: starts}},
		{name: "long name", req: model.CreateEventRequest{Name: strings.Repeat("x", maxNameLength+1), StartsAt: starts}},
		{name: "missing start", req: model.CreateEventRequest{Name: "Meetup"}},
		{name: "negative capacity", req: model.CreateEventRequest{Name: "Meetup", StartsAt: starts, Capacity: -1}},
		{name: "huge capacity", req: model.CreateEventRequest{Name: "Meetup", StartsAt: starts, Capacity: maxCapacity + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.events.CreateEvent(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "ana@example.com")

	_, err := env.users.CreateUser(context.Background(), model.CreateUserRequest{Name: "Other", Email: "ANA@example.com"})
	if Kind(err) != KindAlreadyExists {
		t.Fatalf("kind = %s (%v), want %s", Kind(err), err, KindAlreadyExists)
	}

	_, err = env.users.CreateUser(context.Background(), model.CreateUserRequest{Name: "Bad", Email: "nope"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestRegister_CreatesRegistrationAndBooksSeat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, 48*time.Hour, 10)

	reg := env.register(t, ev.ID, u.ID)
	if reg.ID == "" || reg.Status != model.RegistrationStatusRegistered || reg.Attendance != model.AttendancePending {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	got, err := env.events.GetEvent(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.BookedCount != 1 {
		t.Fatalf("booked_count = %d, want 1", got.BookedCount)
	}

	_, err = env.registrations.Register(context.Background(), ev.ID, model.RegisterRequest{UserID: u.ID})
	if !errors.Is(err, repository.ErrAlreadyRegistered) {
		t.Fatalf("second register err = %v, want already registered", err)
	}
}

func TestRegister_Rejections(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	other := env.createUser(t, "b@example.com")
	ctx := context.Background()

	past := env.createEvent(t, -time.Minute, 0)
	if _, err := env.registrations.Register(ctx, past.ID, model.RegisterRequest{UserID: u.ID}); Kind(err) != KindEventEnded {
		t.Fatalf("past event: kind = %s (%v)", Kind(err), err)
	}

	full := env.createEvent(t, time.Hour, 1)
	env.register(t, full.ID, other.ID)
	if _, err := env.registrations.Register(ctx, full.ID, model.RegisterRequest{UserID: u.ID}); Kind(err) != KindEventFull {
		t.Fatalf("full event: kind = %s (%v)", Kind(err), err)
	}

	if _, err := env.registrations.Register(ctx, "missing", model.RegisterRequest{UserID: u.ID}); Kind(err) != KindNotFound {
		t.Fatalf("missing event: kind = %s (%v)", Kind(err), err)
	}
	if _, err := env.registrations.Register(ctx, full.ID, model.RegisterRequest{UserID: "ghost"}); Kind(err) != KindNotFound {
		t.Fatalf("missing user: kind = %s (%v)", Kind(err), err)
	}
	if _, err := env.registrations.Register(ctx, full.ID, model.RegisterRequest{}); Kind(err) != KindValidationFailed {
		t.Fatalf("blank user: kind = %s (%v)", Kind(err), err)
	}
}

func TestUnregister_CancelsAndFreesSeat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, 24*time.Hour, 1)
	reg := env.register(t, ev.ID, u.ID)
	ctx := context.Background()

	if _, err := env.registrations.Unregister(ctx, ev.ID, model.UnregisterRequest{UserID: u.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing reason: err = %v", err)
	}
	long := model.UnregisterRequest{UserID: u.ID, Reason: strings.Repeat("r", maxReasonLength+1)}
	if _, err := env.registrations.Unregister(ctx, ev.ID, long); !errors.Is(err, ErrValidation) {
		t.Fatalf("long reason: err = %v", err)
	}

	cancelled, err := env.registrations.Unregister(ctx, ev.ID, model.UnregisterRequest{UserID: u.ID, Reason: " sick "})
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if cancelled.ID != reg.ID || cancelled.Status != model.RegistrationStatusCancelled || cancelled.CancellationReason != "sick" {
		t.Fatalf("unexpected cancelled registration: %+v", cancelled)
	}
	got, _ := env.events.GetEvent(ctx, ev.ID)
	if got.BookedCount != 0 {
		t.Fatalf("booked_count = %d, want 0", got.BookedCount)
	}

	_, err = env.registrations.Unregister(ctx, ev.ID, model.UnregisterRequest{UserID: u.ID, Reason: "again"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second unregister err = %v, want not found", err)
	}
}

func TestRegister_ReactivatesCancelledRegistration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, 24*time.Hour, 5)
	ctx := context.Background()

	first := env.register(t, ev.ID, u.ID)
	if _, err := env.registrations.Unregister(ctx, ev.ID, model.UnregisterRequest{UserID: u.ID, Reason: "busy"}); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	again := env.register(t, ev.ID, u.ID)
	if again.ID != first.ID {
		t.Fatalf("reactivation created new id %s, want %s", again.ID, first.ID)
	}
	if again.Status != model.RegistrationStatusRegistered || again.CancellationReason != "" || again.CancelledAt != nil {
		t.Fatalf("registration not reactivated cleanly: %+v", again)
	}

	regs, err := env.events.ListRegistrations(ctx, ev.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(regs))
	}
	got, _ := env.events.GetEvent(ctx, ev.ID)
	if got.BookedCount != 1 {
		t.Fatalf("booked_count = %d, want 1", got.BookedCount)
	}
}

func TestUpdateAttendance_AbsentThenPresentRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, time.Hour, 0)
	reg := env.register(t, ev.ID, u.ID)

	env.markAttendance(t, reg.ID, model.AttendanceAbsent)
	if got := env.user(t, u.ID); got.Penalties != 1 || got.PenaltyExpiresAt == nil {
		t.Fatalf("after absent: %+v", got)
	}
	// Re-marking absent does not add a second penalty.
	env.markAttendance(t, reg.ID, model.AttendanceAbsent)
	if got := env.user(t, u.ID); got.Penalties != 1 {
		t.Fatalf("after repeated absent: penalties = %d, want 1", got.Penalties)
	}

	env.markAttendance(t, reg.ID, model.AttendancePresent)
	got := env.user(t, u.ID)
	if got.Penalties != 0 || got.PenaltyExpiresAt != nil || got.BannedUntil != nil {
		t.Fatalf("after correction: %+v", got)
	}

	titles := env.titles(t, u.ID)
	want := []string{"Penalty added", "Penalty removed"}
	if strings.Join(titles, ",") != strings.Join(want, ",") {
		t.Fatalf("notifications = %v, want %v", titles, want)
	}
}

func TestUpdateAttendance_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		before        []model.Attendance
		next          model.Attendance
		wantPenalties int
		wantTitles    []string
	}{
		{name: "pending to present", next: model.AttendancePresent, wantPenalties: 0},
		{name: "pending to absent", next: model.AttendanceAbsent, wantPenalties: 1, wantTitles: []string{"Penalty added"}},
		{
			name:          "present to absent",
			before:        []model.Attendance{model.AttendancePresent},
			next:          model.AttendanceAbsent,
			wantPenalties: 1,
			wantTitles:    []string{"Penalty added"},
		},
		{
			name:          "absent to present",
			before:        []model.Attendance{model.AttendanceAbsent},
			next:          model.AttendancePresent,
			wantPenalties: 0,
			wantTitles:    []string{"Penalty added", "Penalty removed"},
		},
		{
			name:          "present to present",
			before:        []model.Attendance{model.AttendancePresent},
			next:          model.AttendancePresent,
			wantPenalties: 0,
		},
		{
			name:          "absent to absent",
			before:        []model.Attendance{model.AttendanceAbsent},
			next:          model.AttendanceAbsent,
			wantPenalties: 1,
			wantTitles:    []string{"Penalty added"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			u := env.createUser(t, "a@example.com")
			ev := env.createEvent(t, time.Hour, 0)
			reg := env.register(t, ev.ID, u.ID)
			for _, a := range tt.before {
				env.markAttendance(t, reg.ID, a)
			}

			env.markAttendance(t, reg.ID, tt.next)

			if got := env.user(t, u.ID); got.Penalties != tt.wantPenalties {
				t.Fatalf("penalties = %d, want %d", got.Penalties, tt.wantPenalties)
			}
			if got, want := strings.Join(env.titles(t, u.ID), ","), strings.Join(tt.wantTitles, ","); got != want {
				t.Fatalf("notifications = %q, want %q", got, want)
			}
		})
	}
}

func TestRegister_ReactivationBypassesBan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ctx := context.Background()

	cancelledEvent := env.createEvent(t, 48*time.Hour, 0)
	original := env.register(t, cancelledEvent.ID, u.ID)
	if _, err := env.registrations.Unregister(ctx, cancelledEvent.ID, model.UnregisterRequest{UserID: u.ID, Reason: "clash"}); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	for i := 0; i < 3; i++ {
		ev := env.createEvent(t, time.Hour, 0)
		reg := env.register(t, ev.ID, u.ID)
		env.markAttendance(t, reg.ID, model.AttendanceAbsent)
	}
	if got := env.user(t, u.ID); !got.IsBanned(env.clock.now) {
		t.Fatalf("user not banned after three absences: %+v", got)
	}

	reactivated, err := env.registrations.Register(ctx, cancelledEvent.ID, model.RegisterRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("reactivate while banned: %v", err)
	}
	if reactivated.ID != original.ID || !reactivated.IsActive() {
		t.Fatalf("reactivated = %+v, want active registration %s", reactivated, original.ID)
	}

	fresh := env.createEvent(t, 48*time.Hour, 0)
	_, err = env.registrations.Register(ctx, fresh.ID, model.RegisterRequest{UserID: u.ID})
	var closed *RegistrationClosedError
	if !errors.As(err, &closed) || closed.Reason != ClosedReasonBanned {
		t.Fatalf("fresh event err = %v, want banned *RegistrationClosedError", err)
	}
}

func TestUpdateAttendance_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, time.Hour, 0)
	reg := env.register(t, ev.ID, u.ID)
	ctx := context.Background()

	for _, a := range []model.Attendance{"", model.AttendancePending, "late"} {
		_, err := env.registrations.UpdateAttendance(ctx, reg.ID, model.AttendanceRequest{Attendance: a})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("attendance %q: err = %v, want validation error", a, err)
		}
	}

	if _, err := env.registrations.Unregister(ctx, ev.ID, model.UnregisterRequest{UserID: u.ID, Reason: "away"}); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	_, err := env.registrations.UpdateAttendance(ctx, reg.ID, model.AttendanceRequest{Attendance: model.AttendanceAbsent})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cancelled registration: err = %v, want not found", err)
	}
}

func TestRegister_BannedUserIsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev := env.createEvent(t, time.Hour, 0)
		reg := env.register(t, ev.ID, u.ID)
		env.markAttendance(t, reg.ID, model.AttendanceAbsent)
	}

	status, err := env.users.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !status.IsBanned || status.CanRegister || status.RemainingBanDays != 30 {
		t.Fatalf("unexpected status: %+v", status)
	}

	next := env.createEvent(t, time.Hour, 0)
	_, err = env.registrations.Register(ctx, next.ID, model.RegisterRequest{UserID: u.ID})
	var closed *RegistrationClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("err = %v, want *RegistrationClosedError", err)
	}
	if !errors.Is(err, ErrRegistrationClosed) || Kind(err) != KindRegistrationClosed {
		t.Fatalf("err does not classify as registration closed: %v", err)
	}
	if closed.Reason != ClosedReasonBanned || closed.RemainingBanDays <= 0 || closed.Penalties != 3 {
		t.Fatalf("unexpected rejection: %+v", closed)
	}
	if d := closed.Details(); d["reason"] != "banned" || d["banned_until"] == nil {
		t.Fatalf("unexpected details: %v", d)
	}
}

func TestRegister_ResetsExpiredPenaltiesBeforeChecking(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	for i := 0; i < 3; i++ {
		ev := env.createEvent(t, time.Hour, 0)
		reg := env.register(t, ev.ID, u.ID)
		env.markAttendance(t, reg.ID, model.AttendanceAbsent)
	}

	env.clock.Advance(31 * 24 * time.Hour)
	ev := env.createEvent(t, time.Hour, 0)
	env.register(t, ev.ID, u.ID)

	got := env.user(t, u.ID)
	if got.Penalties != 0 || got.BannedUntil != nil || got.PenaltyExpiresAt != nil {
		t.Fatalf("penalties not reset: %+v", got)
	}
	titles := env.titles(t, u.ID)
	if titles[len(titles)-1] != "Penalties reset" {
		t.Fatalf("last notification = %q, want Penalties reset", titles[len(titles)-1])
	}
}

func TestRegister_ResetCommitsEvenWhenRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	ev := env.createEvent(t, time.Hour, 0)
	reg := env.register(t, ev.ID, u.ID)
	env.markAttendance(t, reg.ID, model.AttendanceAbsent)

	env.clock.Advance(31 * 24 * time.Hour)
	past := env.createEvent(t, -time.Hour, 0)
	_, err := env.registrations.Register(context.Background(), past.ID, model.RegisterRequest{UserID: u.ID})
	if !errors.Is(err, ErrEventEnded) {
		t.Fatalf("err = %v, want event ended", err)
	}
	if got := env.user(t, u.ID); got.Penalties != 0 {
		t.Fatalf("penalties = %d, want reset to 0", got.Penalties)
	}
}

func TestUpdateAttendance_CorrectionLiftsBan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	u := env.createUser(t, "a@example.com")
	var regs []*model.Registration
	for i := 0; i < 3; i++ {
		ev := env.createEvent(t, time.Hour, 0)
		reg := env.register(t, ev.ID, u.ID)
		env.markAttendance(t, reg.ID, model.AttendanceAbsent)
		regs = append(regs, reg)
	}

	env.markAttendance(t, regs[0].ID, model.AttendancePresent)
	status, err := env.users.GetUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if status.Penalties != 2 || status.IsBanned || !status.CanRegister {
		t.Fatalf("unexpected status after correction: %+v", status)
	}

	titles := env.titles(t, u.ID)
	tail := strings.Join(titles[len(titles)-2:], ",")
	if tail != "Ban lifted,Penalty removed" {
		t.Fatalf("last notifications = %s", tail)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, err := env.users.GetUser(context.Background(), "nobody")
	if Kind(err) != KindNotFound {
		t.Fatalf("kind = %s (%v), want not_found", Kind(err), err)
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: validationError("bad"), want: KindValidationFailed},
		{err: repository.ErrNotFound, want: KindNotFound},
		{err: repository.ErrAlreadyRegistered, want: KindAlreadyRegistered},
		{err: repository.ErrEmailTaken, want: KindAlreadyExists},
		{err: repository.ErrEventFull, want: KindEventFull},
		{err: &RegistrationClosedError{Reason: ClosedReasonPenalties, Penalties: 3}, want: KindRegistrationClosed},
		{err: ErrEventEnded, want: KindEventEnded},
		{err: errors.New("boom"), want: KindInternal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
