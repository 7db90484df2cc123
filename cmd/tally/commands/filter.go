package commands

import (
	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/domain"
)

// filterFlags binds the session filter to command flags.
type filterFlags struct {
	period     string
	department string
	search     string
	year       int
	month      int
	start      string
	end        string
	date       string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.period, "period", "", "time period (this_month|last_6_months|last_12_months|last_5_years|custom_month|custom_range|one_day)")
	fs.StringVar(&f.department, "department", "", "department to filter by")
	fs.StringVar(&f.search, "search", "", "server-side search term")
	fs.IntVar(&f.year, "year", 0, "year for custom_month")
	fs.IntVar(&f.month, "month", 0, "month (1-12) for custom_month")
	fs.StringVar(&f.start, "start", "", "start date (YYYY-MM-DD) for custom_range")
	fs.StringVar(&f.end, "end", "", "end date (YYYY-MM-DD) for custom_range")
	fs.StringVar(&f.date, "date", "", "date (YYYY-MM-DD) for one_day")
}

func (f *filterFlags) filter() domain.Filter {
	return domain.Filter{
		TimePeriod: domain.TimePeriod(f.period),
		Department: f.department,
		Search:     f.search,
		Year:       f.year,
		Month:      f.month,
		StartDate:  f.start,
		EndDate:    f.end,
		Date:       f.date,
	}
}
