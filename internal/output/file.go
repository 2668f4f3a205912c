package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/lastrix/perftester/internal/runner"
)

// WriteReportFile writes report to path in the named format. An exclusive
// lock on path+".lock" is held for the duration of the write so that
// concurrent sessions sharing an output file do not interleave.
func WriteReportFile(path, format string, report *runner.Report) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlocking %s: %w", path, uerr)
		}
	}()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing report file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := Encode(w, format, report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return w.Flush()
}
