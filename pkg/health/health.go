// Package health pings the dependencies a familyhub process cannot run without.
package health

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Checks names each dependency. Nil entries are skipped.
type Checks map[string]Pinger

// Failures pings every dependency and returns the error text of each one that
// did not answer.
func (c Checks) Failures(ctx context.Context) map[string]string {
	failed := map[string]string{}
	for name, dep := range c {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Err folds the failures into one error, ordered by dependency name.
func (c Checks) Err(ctx context.Context) error {
	failed := c.Failures(ctx)
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	var err error
	for _, name := range names {
		err = multierr.Append(err, fmt.Errorf("%s: %s", name, failed[name]))
	}
	return err
}
