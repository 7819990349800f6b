// Package booking talks to the restaurant booking service. Client speaks the
// remote REST API; Ledger keeps reservations in a local sqlite file when no
// remote service is configured.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tablechat/internal/config"
	"tablechat/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const apiPrefix = "/api/ConsumerApi/v1/Restaurant/"

// Client is the HTTP implementation of domain.BookingClient.
type Client struct {
	baseURL    string
	token      string
	restaurant string
	channel    string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewClient constructs a client from the booking config section.
func NewClient(cfg config.BookingConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	channel := cfg.ChannelCode
	if channel == "" {
		channel = "ONLINE"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.BearerToken,
		restaurant: cfg.Restaurant,
		channel:    channel,
		httpClient: &http.Client{Timeout: timeout},
		retry:      PolicyFromConfig(cfg.Retry),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for lookups.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, url.PathEscape(c.restaurant))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.baseURL + apiPrefix + strings.Join(escaped, "/")
}

// CheckAvailability lists free times on a date.
func (c *Client) CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.Availability, error) {
	party := query.PartySize
	if party <= 0 {
		party = models.DefaultAvailabilityPartySize
	}
	cacheKey := fmt.Sprintf("tablechat:availability:%s:%s:%d", c.restaurant, query.Date, party)

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		var out models.Availability
		if c.readCache(ctx, cacheKey, &out) {
			return &out, nil
		}
		form := url.Values{}
		form.Set("VisitDate", query.Date)
		form.Set("PartySize", strconv.Itoa(party))
		form.Set("ChannelCode", c.channel)

		var doc document
		err := c.retry.Do(ctx, func() error {
			return c.send(ctx, http.MethodPost, c.endpoint("AvailabilitySearch"), form, &doc)
		})
		if err != nil {
			return nil, err
		}
		out = models.Availability{Date: query.Date, Times: doc.times()}
		if date := doc.str("visit_date", "date"); date != "" {
			out.Date = date
		}
		c.writeCache(ctx, cacheKey, out)
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	avail := *v.(*models.Availability)
	avail.Times = append([]string(nil), avail.Times...)
	if query.Time != "" {
		avail.Times = onlyTime(avail.Times, query.Time)
	}
	return &avail, nil
}

// CreateBooking places a reservation. It is not retried: a lost response
// must not turn into two tables.
func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	first, surname := splitName(req.Name)
	form := url.Values{}
	form.Set("VisitDate", req.Date)
	form.Set("VisitTime", withSeconds(req.Time))
	form.Set("PartySize", strconv.Itoa(req.PartySize))
	form.Set("ChannelCode", c.channel)
	form.Set("Customer[FirstName]", first)
	form.Set("Customer[Surname]", surname)
	if req.Mobile != "" {
		form.Set("Customer[Mobile]", req.Mobile)
	}
	if req.SpecialRequests != "" {
		form.Set("SpecialRequests", req.SpecialRequests)
	}

	var doc document
	if err := c.send(ctx, http.MethodPost, c.endpoint("BookingWithStripeToken"), form, &doc); err != nil {
		return nil, err
	}
	b := doc.booking()
	if b.Reference == "" {
		return nil, &APIError{Status: http.StatusOK, Detail: "no booking reference in response", kind: ErrUnavailable}
	}
	fill(&b, models.Booking{
		Name:            req.Name,
		Date:            req.Date,
		Time:            req.Time,
		PartySize:       req.PartySize,
		Status:          models.StatusConfirmed,
		Mobile:          req.Mobile,
		SpecialRequests: req.SpecialRequests,
	})
	return &b, nil
}

// GetBooking looks a reservation up by reference.
func (c *Client) GetBooking(ctx context.Context, reference string) (*models.Booking, error) {
	cacheKey := c.bookingKey(reference)
	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		var out models.Booking
		if c.readCache(ctx, cacheKey, &out) {
			return &out, nil
		}
		var doc document
		err := c.retry.Do(ctx, func() error {
			return c.send(ctx, http.MethodGet, c.endpoint("Booking", reference), nil, &doc)
		})
		if err != nil {
			return nil, err
		}
		out = doc.booking()
		fill(&out, models.Booking{Reference: reference})
		c.writeCache(ctx, cacheKey, out)
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	b := *v.(*models.Booking)
	return &b, nil
}

// UpdateBooking amends the non-empty fields of changes.
func (c *Client) UpdateBooking(ctx context.Context, reference string, changes models.BookingChanges) (*models.Booking, error) {
	form := url.Values{}
	if changes.Date != "" {
		form.Set("VisitDate", changes.Date)
	}
	if changes.Time != "" {
		form.Set("VisitTime", withSeconds(changes.Time))
	}
	if changes.PartySize > 0 {
		form.Set("PartySize", strconv.Itoa(changes.PartySize))
	}
	if changes.SpecialRequests != "" {
		form.Set("SpecialRequests", changes.SpecialRequests)
	}

	var doc document
	err := c.retry.Do(ctx, func() error {
		return c.send(ctx, http.MethodPatch, c.endpoint("Booking", reference), form, &doc)
	})
	if err != nil {
		return nil, err
	}
	c.dropCache(ctx, c.bookingKey(reference))

	b := doc.booking()
	fill(&b, models.Booking{
		Reference:       reference,
		Date:            changes.Date,
		Time:            changes.Time,
		PartySize:       changes.PartySize,
		Status:          models.StatusChanged,
		SpecialRequests: changes.SpecialRequests,
	})
	return &b, nil
}

// CancelBooking cancels a reservation.
func (c *Client) CancelBooking(ctx context.Context, reference string) error {
	form := url.Values{}
	form.Set("micrositeName", c.restaurant)
	form.Set("bookingReference", reference)
	form.Set("cancellationReasonId", "1")

	err := c.retry.Do(ctx, func() error {
		return c.send(ctx, http.MethodPost, c.endpoint("Booking", reference, "Cancel"), form, nil)
	})
	if err != nil {
		return err
	}
	c.dropCache(ctx, c.bookingKey(reference))
	return nil
}

func (c *Client) bookingKey(reference string) string {
	return fmt.Sprintf("tablechat:booking:%s:%s", c.restaurant, reference)
}

func (c *Client) send(ctx context.Context, method, endpoint string, form url.Values, out *document) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("booking call failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("booking call")

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, errorDetail(data))
	}
	if out == nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return &APIError{Status: resp.StatusCode, Detail: "unreadable response", kind: ErrUnavailable}
	}
	*out = asDocument(raw)
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

// document is a loosely typed JSON object; field names differ between
// deployments of the booking service.
type document map[string]interface{}

func asDocument(raw interface{}) document {
	switch v := raw.(type) {
	case map[string]interface{}:
		return document(v)
	case []interface{}:
		return document{"available_slots": v}
	}
	return document{}
}

func (d document) nested(key string) document {
	if m, ok := d[key].(map[string]interface{}); ok {
		return document(m)
	}
	return nil
}

func (d document) str(keys ...string) string {
	for _, k := range keys {
		switch v := d[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func (d document) num(keys ...string) int {
	for _, k := range keys {
		switch v := d[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

func (d document) booking() models.Booking {
	src := d
	if inner := d.nested("booking"); inner != nil {
		src = inner
	}
	b := models.Booking{
		Reference:       src.str("booking_reference", "booking_id", "reference", "BookingReference"),
		Name:            src.str("customer_name", "name"),
		Date:            src.str("visit_date", "date", "VisitDate"),
		Time:            trimSeconds(src.str("visit_time", "time", "VisitTime")),
		PartySize:       src.num("party_size", "PartySize"),
		Status:          strings.ToLower(src.str("status", "booking_status")),
		Mobile:          src.str("mobile"),
		SpecialRequests: src.str("special_requests", "SpecialRequests"),
	}
	if customer := src.nested("customer"); customer != nil {
		if b.Name == "" {
			b.Name = strings.TrimSpace(customer.str("first_name", "FirstName") + " " + customer.str("surname", "Surname"))
		}
		if b.Mobile == "" {
			b.Mobile = customer.str("mobile", "Mobile")
		}
	}
	return b
}

func (d document) times() []string {
	raw, _ := d["available_slots"].([]interface{})
	if raw == nil {
		raw, _ = d["slots"].([]interface{})
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, trimSeconds(v))
		case map[string]interface{}:
			slot := document(v)
			if avail, ok := slot["available"].(bool); ok && !avail {
				continue
			}
			if t := slot.str("time", "Time"); t != "" {
				out = append(out, trimSeconds(t))
			}
		}
	}
	return out
}

func errorDetail(data []byte) string {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err == nil {
		doc := asDocument(raw)
		if s := doc.str("detail", "message", "error"); s != "" {
			return s
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// fill copies into b every field it lacks from fallback.
func fill(b *models.Booking, fallback models.Booking) {
	if b.Reference == "" {
		b.Reference = fallback.Reference
	}
	if b.Name == "" {
		b.Name = fallback.Name
	}
	if b.Date == "" {
		b.Date = fallback.Date
	}
	if b.Time == "" {
		b.Time = fallback.Time
	}
	if b.PartySize == 0 {
		b.PartySize = fallback.PartySize
	}
	if b.Status == "" {
		b.Status = fallback.Status
	}
	if b.Mobile == "" {
		b.Mobile = fallback.Mobile
	}
	if b.SpecialRequests == "" {
		b.SpecialRequests = fallback.SpecialRequests
	}
}

// splitName gives the first word as first name and the rest as surname.
func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func withSeconds(t string) string {
	if len(t) == len(models.TimeLayout) {
		return t + ":00"
	}
	return t
}

func trimSeconds(t string) string {
	if len(t) == 8 && t[2] == ':' && t[5] == ':' {
		return t[:5]
	}
	return t
}

func onlyTime(times []string, want string) []string {
	for _, t := range times {
		if t == want {
			return []string{t}
		}
	}
	return []string{}
}

// IsTerminal reports whether retrying a dispatch cannot help.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
