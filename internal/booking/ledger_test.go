package booking

import (
	"context"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"tablechat/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) *Ledger {
	t.Helper()
	logger := zerolog.Nop()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "nested", "bookings.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSlots(t *testing.T) {
	slots := Slots()
	assert.Equal(t, "12:00", slots[0])
	assert.Contains(t, slots, "14:00")
	assert.NotContains(t, slots, "14:30")
	assert.Contains(t, slots, "19:30")
	assert.Equal(t, "22:00", slots[len(slots)-1])
	assert.Len(t, slots, 5+11)
}

func TestLedger_Lifecycle(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	avail, err := l.CheckAvailability(ctx, models.AvailabilityQuery{Date: "2026-10-18", PartySize: 2})
	require.NoError(t, err)
	assert.Contains(t, avail.Times, "19:00")

	created, err := l.CreateBooking(ctx, models.BookingRequest{
		Name: "Ada Lovelace", Date: "2026-10-18", Time: "19:00", PartySize: 4, SpecialRequests: "window seat",
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`), created.Reference)
	assert.Equal(t, models.StatusConfirmed, created.Status)

	avail, err = l.CheckAvailability(ctx, models.AvailabilityQuery{Date: "2026-10-18"})
	require.NoError(t, err)
	assert.NotContains(t, avail.Times, "19:00")

	got, err := l.GetBooking(ctx, created.Reference)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	updated, err := l.UpdateBooking(ctx, created.Reference, models.BookingChanges{Time: "20:00", PartySize: 6})
	require.NoError(t, err)
	assert.Equal(t, "20:00", updated.Time)
	assert.Equal(t, 6, updated.PartySize)
	assert.Equal(t, "window seat", updated.SpecialRequests)
	assert.Equal(t, models.StatusChanged, updated.Status)

	avail, err = l.CheckAvailability(ctx, models.AvailabilityQuery{Date: "2026-10-18"})
	require.NoError(t, err)
	assert.Contains(t, avail.Times, "19:00")
	assert.NotContains(t, avail.Times, "20:00")

	require.NoError(t, l.CancelBooking(ctx, created.Reference))
	got, err = l.GetBooking(ctx, created.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	err = l.CancelBooking(ctx, created.Reference)
	assert.ErrorIs(t, err, ErrRejected)
	_, err = l.UpdateBooking(ctx, created.Reference, models.BookingChanges{PartySize: 2})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestLedger_Rejections(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	_, err := l.CreateBooking(ctx, models.BookingRequest{Name: "Ada", Date: "2026-10-18", Time: "19:15", PartySize: 2})
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotEmpty(t, Detail(err))

	_, err = l.CreateBooking(ctx, models.BookingRequest{Name: "Ada", Date: "2026-10-18", Time: "19:00", PartySize: 21})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = l.CreateBooking(ctx, models.BookingRequest{Name: "Ada", Date: "2026-10-18", Time: "19:00", PartySize: 2})
	require.NoError(t, err)
	_, err = l.CreateBooking(ctx, models.BookingRequest{Name: "Grace", Date: "2026-10-18", Time: "19:00", PartySize: 2})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = l.GetBooking(ctx, "NOP0000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, l.CancelBooking(ctx, "NOP0000"), ErrNotFound)
}

func TestLedger_AvailabilityForTime(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	avail, err := l.CheckAvailability(ctx, models.AvailabilityQuery{Date: "2026-10-18", Time: "18:30"})
	require.NoError(t, err)
	assert.Equal(t, []string{"18:30"}, avail.Times)

	avail, err = l.CheckAvailability(ctx, models.AvailabilityQuery{Date: "2026-10-18", Time: "16:00"})
	require.NoError(t, err)
	assert.Empty(t, avail.Times)
}

func TestLedger_SlotIndexBacksTheCheck(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	first, err := l.CreateBooking(ctx, models.BookingRequest{Name: "Ada", Date: "2026-10-18", Time: "19:00", PartySize: 2})
	require.NoError(t, err)

	// insert skips checkSlot, as a create that lost the race would
	late := models.Booking{Name: "Grace", Date: "2026-10-18", Time: "19:00", PartySize: 2, Status: models.StatusConfirmed}
	err = l.insert(ctx, &late)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, Detail(err), "already booked")

	other, err := l.CreateBooking(ctx, models.BookingRequest{Name: "Grace", Date: "2026-10-18", Time: "20:00", PartySize: 2})
	require.NoError(t, err)
	_, err = l.db.ExecContext(ctx, `UPDATE bookings SET visit_time = '19:00' WHERE reference = ?`, other.Reference)
	assert.True(t, slotTaken(err))

	require.NoError(t, l.CancelBooking(ctx, first.Reference))
	late = models.Booking{Name: "Grace", Date: "2026-10-18", Time: "19:00", PartySize: 2, Status: models.StatusConfirmed}
	require.NoError(t, l.insert(ctx, &late))
}

func TestLedger_ConcurrentCreatesOneSlot(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		booked   int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CreateBooking(ctx, models.BookingRequest{Name: "Ada", Date: "2026-10-18", Time: "19:30", PartySize: 2})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				booked++
			} else if assert.ErrorIs(t, err, ErrRejected) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, booked)
	assert.Equal(t, 19, rejected)

	var active int
	require.NoError(t, l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE visit_date = ? AND visit_time = ? AND status != ?`,
		"2026-10-18", "19:30", models.StatusCancelled).Scan(&active))
	assert.Equal(t, 1, active)
}
