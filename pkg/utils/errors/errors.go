package errors

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
)

// ErrorGeneric is returned for generic error
const ErrorGeneric = 20

// CheckError logs a fatal message and exits with ErrorGeneric if err is not nil
func CheckError(err error, log logr.Logger) {
	if err != nil {
		Fatal(log, ErrorGeneric, err)
	}
}

// Fatal is a helper to exit with custom code.
func Fatal(log logr.Logger, exitcode int, keysAndValues ...any) {
	log.Error(fmt.Errorf("exit code %d", exitcode), "Fatal error", keysAndValues...)
	os.Exit(exitcode)
}
