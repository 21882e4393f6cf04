package queue

import "context"

// FlagsResolver produces the set of flags GetJob should skip for the
// current iteration. It collapses the three shapes the design allows
// (absent, a static list, a callable that may itself need to await
// something) into one: a function that returns a list of strings or an
// error, given a context.
type FlagsResolver func(ctx context.Context) ([]string, error)

// StaticFlags returns a FlagsResolver that always resolves to the same list,
// for callers with a fixed forbidden-flag set known at construction time.
func StaticFlags(flags ...string) FlagsResolver {
	return func(context.Context) ([]string, error) {
		return flags, nil
	}
}

// NoFlags is the default resolver: no flags are forbidden.
func NoFlags(context.Context) ([]string, error) {
	return nil, nil
}
