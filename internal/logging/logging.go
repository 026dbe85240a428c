package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the process logger: JSON in prod, readable text elsewhere.
func New(env string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}
