package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tablechat/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Ledger is a single-restaurant booking service on top of sqlite. Each
// half-hour slot holds one table.
type Ledger struct {
	db     *sql.DB
	logger *zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// OpenLedger opens (and creates if needed) the sqlite file at path.
func OpenLedger(path string, logger *zerolog.Logger) (*Ledger, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	// Создаем директорию для БД, если её нет
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect ledger: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("booking ledger ready")
	return &Ledger{
		db:     db,
		logger: logger,
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            reference TEXT PRIMARY KEY,
            customer_name TEXT NOT NULL,
            visit_date TEXT NOT NULL,
            visit_time TEXT NOT NULL,
            party_size INTEGER NOT NULL,
            mobile TEXT NOT NULL DEFAULT '',
            special_requests TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'confirmed',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_visit ON bookings(visit_date, visit_time)`,
		// один стол на слот: активная бронь занимает слот целиком
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(visit_date, visit_time) WHERE status != 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Slots returns the bookable start times: lunch 12:00-14:00 and dinner
// 17:00-22:00, every thirty minutes.
func Slots() []string {
	var out []string
	add := func(from, to int) {
		for m := from * 60; m <= to*60; m += 30 {
			out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
		}
	}
	add(12, 14)
	add(17, 22)
	return out
}

func isSlot(t string) bool {
	for _, s := range Slots() {
		if s == t {
			return true
		}
	}
	return false
}

func (l *Ledger) taken(ctx context.Context, date, except string) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT visit_time FROM bookings WHERE visit_date = ? AND status != ? AND reference != ?`,
		date, models.StatusCancelled, except)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out[t] = true
	}
	return out, rows.Err()
}

// CheckAvailability lists free slots on a date.
func (l *Ledger) CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.Availability, error) {
	if query.PartySize > models.MaxPartySize {
		return nil, Rejected(fmt.Sprintf("we seat at most %d guests per table", models.MaxPartySize))
	}
	taken, err := l.taken(ctx, query.Date, "")
	if err != nil {
		return nil, err
	}
	times := make([]string, 0)
	for _, s := range Slots() {
		if taken[s] {
			continue
		}
		if query.Time != "" && s != query.Time {
			continue
		}
		times = append(times, s)
	}
	return &models.Availability{Date: query.Date, Times: times}, nil
}

func (l *Ledger) checkSlot(ctx context.Context, date, t, except string) error {
	if !isSlot(t) {
		return Rejected("tables start every half hour between 12:00-14:00 and 17:00-22:00")
	}
	taken, err := l.taken(ctx, date, except)
	if err != nil {
		return err
	}
	if taken[t] {
		return slotRejected(date, t)
	}
	return nil
}

// CreateBooking stores a new confirmed reservation.
func (l *Ledger) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	if req.PartySize < models.MinPartySize || req.PartySize > models.MaxPartySize {
		return nil, Rejected(fmt.Sprintf("party size must be between %d and %d", models.MinPartySize, models.MaxPartySize))
	}
	if err := l.checkSlot(ctx, req.Date, req.Time, ""); err != nil {
		return nil, err
	}

	b := models.Booking{
		Name:            req.Name,
		Date:            req.Date,
		Time:            req.Time,
		PartySize:       req.PartySize,
		Status:          models.StatusConfirmed,
		Mobile:          req.Mobile,
		SpecialRequests: req.SpecialRequests,
	}
	if err := l.insert(ctx, &b); err != nil {
		return nil, err
	}
	l.logger.Info().Str("reference", b.Reference).Str("date", b.Date).Str("time", b.Time).Msg("booking stored")
	return &b, nil
}

// insert stores b under a fresh reference. The slot index has the last word
// when two creates race past checkSlot.
func (l *Ledger) insert(ctx context.Context, b *models.Booking) error {
	for i := 0; i < 5; i++ {
		b.Reference = l.newReference()
		_, err := l.db.ExecContext(ctx, `
            INSERT INTO bookings (reference, customer_name, visit_date, visit_time, party_size, mobile, special_requests, status, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Reference, b.Name, b.Date, b.Time, b.PartySize, b.Mobile, b.SpecialRequests, b.Status, l.now(), l.now())
		switch {
		case err == nil:
			return nil
		case slotTaken(err):
			return slotRejected(b.Date, b.Time)
		case !constraint(err, sqlite3.ErrConstraintPrimaryKey):
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: could not allocate a reference", ErrUnavailable)
}

func constraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == code
}

func slotTaken(err error) bool {
	return constraint(err, sqlite3.ErrConstraintUnique)
}

func slotRejected(date, t string) error {
	return Rejected(fmt.Sprintf("%s on %s is already booked", t, date))
}

// newReference returns three letters followed by four digits.
func (l *Ledger) newReference() string {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	l.mu.Lock()
	defer l.mu.Unlock()
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		sb.WriteByte(letters[l.rnd.Intn(len(letters))])
	}
	fmt.Fprintf(&sb, "%04d", l.rnd.Intn(10000))
	return sb.String()
}

// GetBooking reads a reservation by reference.
func (l *Ledger) GetBooking(ctx context.Context, reference string) (*models.Booking, error) {
	var b models.Booking
	err := l.db.QueryRowContext(ctx, `
        SELECT reference, customer_name, visit_date, visit_time, party_size, mobile, special_requests, status
        FROM bookings WHERE reference = ?`, strings.ToUpper(reference)).
		Scan(&b.Reference, &b.Name, &b.Date, &b.Time, &b.PartySize, &b.Mobile, &b.SpecialRequests, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &APIError{Status: 404, Detail: reference, kind: ErrNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &b, nil
}

// UpdateBooking applies changes to an active reservation.
func (l *Ledger) UpdateBooking(ctx context.Context, reference string, changes models.BookingChanges) (*models.Booking, error) {
	b, err := l.GetBooking(ctx, reference)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled {
		return nil, Rejected("the booking is cancelled")
	}
	if changes.Empty() {
		return nil, Rejected("nothing to change")
	}

	if changes.Date != "" {
		b.Date = changes.Date
	}
	if changes.Time != "" {
		b.Time = changes.Time
	}
	if changes.PartySize != 0 {
		if changes.PartySize < models.MinPartySize || changes.PartySize > models.MaxPartySize {
			return nil, Rejected(fmt.Sprintf("party size must be between %d and %d", models.MinPartySize, models.MaxPartySize))
		}
		b.PartySize = changes.PartySize
	}
	if changes.SpecialRequests != "" {
		b.SpecialRequests = changes.SpecialRequests
	}
	if changes.Date != "" || changes.Time != "" {
		if err := l.checkSlot(ctx, b.Date, b.Time, b.Reference); err != nil {
			return nil, err
		}
	}
	b.Status = models.StatusChanged

	_, err = l.db.ExecContext(ctx, `
        UPDATE bookings SET visit_date = ?, visit_time = ?, party_size = ?, special_requests = ?, status = ?, updated_at = ?
        WHERE reference = ?`,
		b.Date, b.Time, b.PartySize, b.SpecialRequests, b.Status, l.now(), b.Reference)
	if slotTaken(err) {
		return nil, slotRejected(b.Date, b.Time)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return b, nil
}

// CancelBooking marks a reservation cancelled.
func (l *Ledger) CancelBooking(ctx context.Context, reference string) error {
	b, err := l.GetBooking(ctx, reference)
	if err != nil {
		return err
	}
	if b.Status == models.StatusCancelled {
		return Rejected("the booking is already cancelled")
	}
	_, err = l.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE reference = ?`,
		models.StatusCancelled, l.now(), b.Reference)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
