package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger. Unknown levels fall back to
// info; format "json" switches to the JSON formatter.
func Init(level, format string) {
	InitWithOutput(os.Stderr, level, format)
}

// InitWithOutput is Init with an explicit writer. The terminal board uses it
// to keep log lines off the alternate screen.
func InitWithOutput(w io.Writer, level, format string) {
	log.SetOutput(w)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.InfoLevel
	}
	log.SetLevel(l)
}

func L() *log.Logger { return log.StandardLogger() }

// Component returns a logger tagged with the component name.
func Component(name string) log.FieldLogger {
	return L().WithField("component", name)
}
