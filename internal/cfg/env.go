package cfg

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Aliases maps conventional environment names to flags. They are consulted
// only when the prefixed variable is unset, in the order listed.
var Aliases = []struct {
	Env  string
	Flag string
}{
	{"PORT", "http-port"},
	{"APP_ENV", "env"},
	{"NODE_ENV", "env"},
	{"DATABASE_URL", "database-url"},
	{"JWT_SECRET", "jwt-secret"},
	{"REDIS_URL", "ratelimit-redis-url"},
}

// EnvKey maps flag "foo-bar" to PREFIX_FOO_BAR.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Visited reports the flags set on the command line of a parsed FlagSet.
func Visited(fs *flag.FlagSet) func(string) bool {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	return func(name string) bool { return explicit[name] }
}

// LoadDotEnv loads the given dotenv files into the process environment.
// Missing files are skipped and variables already set are never overridden.
func LoadDotEnv(paths ...string) error {
	var present []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		present = append(present, p)
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables, then from Aliases. It returns the flags it set.
// Precedence: cli flag > PREFIX_ env > alias env > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, explicit func(string) bool, logf func(string, ...any)) map[string]bool {
	if explicit == nil {
		explicit = Visited(fs)
	}
	set := make(map[string]bool)

	fs.VisitAll(func(f *flag.Flag) {
		key, envVal, ok := lookupFlagEnv(prefix, f.Name)
		if !ok {
			return
		}
		if explicit(f.Name) {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s", f.Name, f.Value.String(), key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
			return
		}
		set[f.Name] = true
	})
	return set
}

func lookupFlagEnv(prefix, name string) (key, val string, ok bool) {
	key = EnvKey(prefix, name)
	if val, ok = os.LookupEnv(key); ok {
		return key, val, true
	}
	for _, a := range Aliases {
		if a.Flag != name {
			continue
		}
		if val, ok = os.LookupEnv(a.Env); ok {
			return a.Env, val, true
		}
	}
	return "", "", false
}
