package obs

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the global logger. Unknown levels fall back to info.
func SetupLogging(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
