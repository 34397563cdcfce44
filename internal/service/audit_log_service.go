package service

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AuditEvent is one security-relevant occurrence: a login, a token exchange,
// a refresh, a revocation, or a detected replay.
type AuditEvent struct {
	Event     string
	ClientID  string
	UserUUID  string
	SubjectID string
	ClientIP  string
	Success   bool
	Message   string
}

type AuditLogServiceConfig struct {
	LogFile string
	LogJson bool
}

type AuditLogService struct {
	config *AuditLogServiceConfig
	logger zerolog.Logger
}

func NewAuditLogService(config *AuditLogServiceConfig) *AuditLogService {
	return &AuditLogService{
		config: config,
	}
}

func (als *AuditLogService) Init() error {
	writers := make([]io.Writer, 0)

	if als.config.LogFile != "" {
		// We are not closing the file here since we will keep writing to it until interrupted
		file, err := os.OpenFile(als.config.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0640)
		if err != nil {
			return err
		}
		writter := zerolog.ConsoleWriter(zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true, PartsOrder: []string{
			"time", "level", "message",
		}})
		writter.FormatLevel = func(i any) string {
			return strings.ToUpper(fmt.Sprintf("[ %s ]", i))
		}
		writter.FormatMessage = func(i any) string {
			return fmt.Sprintf("%s", i)
		}
		writter.FormatFieldName = func(i any) string {
			return fmt.Sprintf("%s=", i)
		}
		writter.FormatFieldValue = func(i any) string {
			return fmt.Sprintf("%s", i)
		}
		writers = append(writers, writter)
	}

	if !als.config.LogJson {
		writter := zerolog.ConsoleWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		writers = append(writers, writter)
	} else {
		writers = append(writers, os.Stdout)
	}

	als.logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	return nil
}

func (als *AuditLogService) Log(event AuditEvent) {
	var entry *zerolog.Event

	if event.Success {
		entry = als.logger.Info()
	} else {
		entry = als.logger.Warn()
	}

	entry.
		Str("event", event.Event).
		Str("client_id", event.ClientID).
		Str("user_uuid", event.UserUUID).
		Str("subject_id", event.SubjectID).
		Str("client_ip", event.ClientIP).
		Bool("success", event.Success).
		Msg(event.Message)
}
