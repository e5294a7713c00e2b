package cfg

import (
	"fmt"
	"strings"
)

// Mode selects development or production behavior: log format, debug
// output, and how much of an error reaches the client. Unset is neither:
// error messages reach the client without stacks and the production
// checks are skipped.
type Mode string

const (
	Unset       Mode = "unset"
	Development Mode = "development"
	Production  Mode = "production"
	Test        Mode = "test"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Unset:
		return Unset, nil
	case Development, Production, Test:
		return m, nil
	case "dev":
		return Development, nil
	case "prod":
		return Production, nil
	default:
		return "", fmt.Errorf("unknown ENV %q (valid modes are development|production|test or empty)", s)
	}
}

func (m Mode) IsDevelopment() bool { return m == Development }
func (m Mode) IsProduction() bool  { return m == Production }
func (m Mode) String() string      { return string(m) }
