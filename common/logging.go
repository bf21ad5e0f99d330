// Package common provides the process-wide logging setup for the scraper
// bridge. Log output is routed so error-level records land on stderr while
// everything else goes to stdout, which keeps container log collectors that
// treat the two streams differently (alerting on stderr, archiving stdout)
// working without extra configuration.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter is an io.Writer that inspects a formatted logrus entry and
// sends it to stderr when it is an error record, stdout otherwise.
type OutputSplitter struct{}

// Write implements io.Writer. It looks for the literal "level=error" produced
// by logrus's TextFormatter or `"level":"error"` produced by its
// JSONFormatter; this avoids parsing the entry back out of its formatted form.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance used by every component of the
// scraper (engine, pipeline, store backends, auth strategies). Components
// should use Logger.WithFields rather than construct their own logrus
// instance, so that level and formatter changes made at startup (see
// NewLogger) apply uniformly.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
