package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// TimePeriod selects the time window a collection is filtered by.
type TimePeriod string

const (
	PeriodThisMonth    TimePeriod = "this_month"
	PeriodLast6Months  TimePeriod = "last_6_months"
	PeriodLast12Months TimePeriod = "last_12_months"
	PeriodLast5Years   TimePeriod = "last_5_years"
	PeriodCustomMonth  TimePeriod = "custom_month"
	PeriodCustomRange  TimePeriod = "custom_range"
	PeriodOneDay       TimePeriod = "one_day"
)

// Periods lists the selectable time periods in display order.
var Periods = []TimePeriod{
	PeriodThisMonth,
	PeriodLast6Months,
	PeriodLast12Months,
	PeriodLast5Years,
	PeriodCustomMonth,
	PeriodCustomRange,
	PeriodOneDay,
}

// Filter is the tuple a load session is bound to. Any change to it starts a
// new session.
type Filter struct {
	TimePeriod TimePeriod `json:"time_period,omitempty" validate:"omitempty,oneof=this_month last_6_months last_12_months last_5_years custom_month custom_range one_day"`
	Department string     `json:"department,omitempty"`
	Search     string     `json:"search,omitempty" validate:"max=200"`

	// custom_month
	Year  int `json:"year,omitempty" validate:"required_if=TimePeriod custom_month,omitempty,gte=1900,lte=9999"`
	Month int `json:"month,omitempty" validate:"required_if=TimePeriod custom_month,omitempty,gte=1,lte=12"`

	// custom_range
	StartDate string `json:"start_date,omitempty" validate:"required_if=TimePeriod custom_range,omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"required_if=TimePeriod custom_range,omitempty,datetime=2006-01-02"`

	// one_day
	Date string `json:"date,omitempty" validate:"required_if=TimePeriod one_day,omitempty,datetime=2006-01-02"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the filter's fields against its time period.
func (f Filter) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	// ISO dates order lexically
	if f.StartDate != "" && f.EndDate != "" && f.EndDate < f.StartDate {
		return fmt.Errorf("invalid filter: end_date %s is before start_date %s", f.EndDate, f.StartDate)
	}
	return nil
}

// Params encodes the filter as backend query parameters. Empty fields are
// omitted.
func (f Filter) Params() url.Values {
	q := url.Values{}
	if f.TimePeriod != "" {
		q.Set("time_period", string(f.TimePeriod))
	}
	if f.Year != 0 {
		q.Set("year", strconv.Itoa(f.Year))
	}
	if f.Month != 0 {
		q.Set("month", strconv.Itoa(f.Month))
	}
	if f.StartDate != "" {
		q.Set("start_date", f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("end_date", f.EndDate)
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Department != "" {
		q.Set("department", f.Department)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// String returns the encoded parameters, or "all" for the empty filter.
func (f Filter) String() string {
	if encoded := f.Params().Encode(); encoded != "" {
		return encoded
	}
	return "all"
}

// Signature is a short stable hash of the filter, used as a storage key.
func (f Filter) Signature() string {
	hash := sha256.Sum256([]byte(f.Params().Encode()))
	return hex.EncodeToString(hash[:6])
}

// NextPeriod returns the period after p in Periods, wrapping around.
// Only periods that need no extra fields are returned.
func NextPeriod(p TimePeriod) TimePeriod {
	simple := []TimePeriod{PeriodThisMonth, PeriodLast6Months, PeriodLast12Months, PeriodLast5Years}
	for i, candidate := range simple {
		if candidate == p {
			return simple[(i+1)%len(simple)]
		}
	}
	return simple[0]
}
