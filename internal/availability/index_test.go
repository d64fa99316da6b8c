package availability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/doctor-booking-engine/internal/appointments"
	"github.com/wolfman30/doctor-booking-engine/internal/schedule"
)

// Monday 2026-03-16, 10:15.
var clock = time.Date(2026, 3, 16, 10, 15, 0, 0, time.UTC)

var today = time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

func weekdays() schedule.WeeklyConfig {
	return schedule.WeeklyConfig{
		SlotDurationMinutes: 30,
		Days: map[schedule.Weekday]schedule.DaySchedule{
			schedule.Monday:  {Enabled: true, StartTime: "09:00", EndTime: "12:00"},
			schedule.Tuesday: {Enabled: true, StartTime: "09:00", EndTime: "12:00"},
		},
	}
}

func book(t *testing.T, store appointments.Store, date time.Time, at string, status appointments.Status) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &appointments.Appointment{
		DoctorID: "doc-1",
		Date:     date,
		Time:     at,
		Status:   status,
		Source:   appointments.SourceWebsite,
		Patient:  appointments.PatientRef{UserID: "user-1"},
	}))
}

func newTestIndex(store appointments.Store, cache Cache) *Index {
	return NewIndex(store, cache, time.UTC, nil).WithClock(func() time.Time { return clock })
}

func TestIsBookedMatchesByCalendarDay(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	book(t, store, today, "11:00", appointments.StatusPending)
	idx := newTestIndex(store, nil)

	booked, err := idx.IsBooked(ctx, "doc-1", today.Add(18*time.Hour), "11:00")
	require.NoError(t, err)
	assert.True(t, booked)

	booked, err = idx.IsBooked(ctx, "doc-1", today, "11:30")
	require.NoError(t, err)
	assert.False(t, booked)

	booked, err = idx.IsBooked(ctx, "doc-2", today, "11:00")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestIsBookedIgnoresPastDaysAndCancelled(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	yesterday := today.AddDate(0, 0, -1)
	book(t, store, yesterday, "09:00", appointments.StatusAttended)
	book(t, store, today, "09:30", appointments.StatusCancelled)
	idx := newTestIndex(store, nil)

	booked, err := idx.IsBooked(ctx, "doc-1", yesterday, "09:00")
	require.NoError(t, err)
	assert.False(t, booked)

	booked, err = idx.IsBooked(ctx, "doc-1", today, "09:30")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestDaySlotsKeepsElapsedSlotsListed(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	book(t, store, today, "11:00", appointments.StatusConfirmed)
	idx := newTestIndex(store, nil)

	slots, err := idx.DaySlots(ctx, "doc-1", weekdays(), today)
	require.NoError(t, err)
	require.Len(t, slots, 6)
	assert.Equal(t, "09:00", slots[0].Time, "slots before now are still listed")
	assert.Equal(t, "2026-03-16", slots[0].Date)
	for _, s := range slots {
		assert.Equal(t, s.Time == "11:00", s.Booked, s.Time)
	}

	sunday, err := idx.DaySlots(ctx, "doc-1", weekdays(), today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.NotNil(t, sunday)
	assert.Empty(t, sunday)
}

func TestFirstAvailableSkipsElapsedAndBooked(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	book(t, store, today, "10:30", appointments.StatusPending)
	idx := newTestIndex(store, nil)

	slot, ok, err := idx.FirstAvailable(ctx, "doc-1", weekdays(), 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Slot{Date: "2026-03-16", Time: "11:00"}, slot)
}

func TestFirstAvailableRollsToNextEnabledDay(t *testing.T) {
	ctx := context.Background()
	store := appointments.NewMemoryStore()
	for _, at := range []string{"10:30", "11:00", "11:30"} {
		book(t, store, today, at, appointments.StatusPending)
	}
	idx := newTestIndex(store, nil)

	slot, ok, err := idx.FirstAvailable(ctx, "doc-1", weekdays(), 30)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Slot{Date: "2026-03-17", Time: "09:00"}, slot)

	_, ok, err = idx.FirstAvailable(ctx, "doc-1", weekdays(), 1)
	require.NoError(t, err)
	assert.False(t, ok, "horizon of one day only covers today")

	_, ok, err = idx.FirstAvailable(ctx, "doc-1", schedule.WeeklyConfig{}, 30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBookedSlotsUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := appointments.NewMemoryStore()
	book(t, store, today.AddDate(0, 0, 1), "09:00", appointments.StatusPending)
	book(t, store, today, "11:30", appointments.StatusPending)
	cache := NewRedisCache(rdb, time.Minute)
	idx := newTestIndex(store, cache)

	slots, err := idx.BookedSlots(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []BookedSlot{{Date: "2026-03-16", Time: "11:30"}, {Date: "2026-03-17", Time: "09:00"}}, slots)
	assert.True(t, mr.Exists(bookedKeyPrefix+"doc-1"))
	assert.Equal(t, time.Minute, mr.TTL(bookedKeyPrefix+"doc-1"))

	book(t, store, today, "09:00", appointments.StatusPending)
	slots, err = idx.BookedSlots(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, slots, 2, "served from cache")

	idx.Invalidate(ctx, "doc-1")
	slots, err = idx.BookedSlots(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestRedisCacheMissAndCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := NewRedisCache(rdb, 0)

	_, ok, err := cache.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set(bookedKeyPrefix+"doc-1", "not-json"))
	_, _, err = cache.Get(ctx, "doc-1")
	assert.Error(t, err)

	require.NoError(t, cache.Set(ctx, "doc-2", nil))
	slots, ok, err := cache.Get(ctx, "doc-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, slots)
}

type blockingStore struct {
	appointments.Store
	finds   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Find(ctx context.Context, f appointments.Filter) ([]appointments.Appointment, error) {
	if s.finds.Add(1) == 1 {
		close(s.entered)
	}
	<-s.release
	return s.Store.Find(ctx, f)
}

func TestBookedSlotsCollapsesConcurrentMisses(t *testing.T) {
	inner := appointments.NewMemoryStore()
	book(t, inner, today, "11:00", appointments.StatusConfirmed)
	store := &blockingStore{Store: inner, entered: make(chan struct{}), release: make(chan struct{})}
	idx := newTestIndex(store, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]BookedSlot, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			slots, err := idx.BookedSlots(context.Background(), "doc-1")
			assert.NoError(t, err)
			results[n] = slots
		}(n)
	}

	<-store.entered
	time.Sleep(50 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.finds.Load())
	for _, slots := range results {
		assert.Equal(t, []BookedSlot{{Date: "2026-03-16", Time: "11:00"}}, slots)
	}
	results[0][0].Time = "mutated"
	assert.Equal(t, "11:00", results[1][0].Time, "callers get independent copies")
}
