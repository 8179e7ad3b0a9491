package utils

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDateInput accepts either an ISO date or a phrase such as "tomorrow"
// or "next friday", resolved against now. The result is truncated to
// midnight local time. An empty input yields nil.
func ParseDateInput(input string, now time.Time) (*time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if t, err := ParseDateFlag(input); err == nil {
		return t, nil
	}

	r, err := dateParser.Parse(input, now)
	if err != nil || r == nil {
		return nil, ErrInvalidDate(input)
	}
	y, m, d := r.Time.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &day, nil
}
