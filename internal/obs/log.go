package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// serviceName is stamped onto every structured line so the asset
// service's output can be told apart in aggregated streams.
const serviceName = "toolvault"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Request logging and the
// audit trail share it so output stays one JSON object per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogJSON writes entry as a single JSON line, adding the service name
// when the caller did not set one. A marshal failure emits a fixed
// error line instead of dropping the event silently.
func LogJSON(entry map[string]any) {
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","service":"toolvault","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
