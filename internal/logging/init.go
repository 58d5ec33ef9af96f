package logging

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func Init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        "2006-01-02 15:04:05",
		DisableLevelTruncation: false,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			filename := filepath.Base(f.File)
			return "", fmt.Sprintf(" %s:%d", filename, f.Line)
		},
	})
	logrus.SetReportCaller(true)

	level, err := Level()
	if err != nil {
		logrus.Fatalf("parsing log level: %v", err)
	}
	logrus.SetLevel(level)
}

// Level resolves the configured log level.
func Level() (logrus.Level, error) {
	switch {
	case viper.GetBool("debug"):
		return logrus.DebugLevel, nil
	case viper.GetString("log_level") != "":
		return logrus.ParseLevel(viper.GetString("log_level"))
	default:
		return logrus.InfoLevel, nil
	}
}
