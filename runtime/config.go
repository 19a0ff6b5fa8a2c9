package runtime

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Package-level validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	registerCustomValidators()
}

// Config controls session behavior shared by every session of an Engine.
type Config struct {
	// TypingDelay is the pause, with the typing indicator shown, before the next bot prompt.
	TypingDelay         time.Duration `yaml:"typing_delay" default:"800ms" validate:"gte=0"`
	GatewayTimeout      time.Duration `yaml:"gateway_timeout" default:"15s" validate:"gte=1ms"`
	TranscriptTimeout   time.Duration `yaml:"transcript_timeout" default:"5s" validate:"gte=1ms"`
	TranscriptQueueSize int           `yaml:"transcript_queue_size" default:"256" validate:"gte=1"`
	TranscriptWorkers   int           `yaml:"transcript_workers" default:"2" validate:"gte=1,lte=64"`
	// TicketEndpoint marks the api_config endpoint that creates support tickets.
	TicketEndpoint string   `yaml:"ticket_endpoint" default:"/chat/tickets/create"`
	Messages       Messages `yaml:"messages"`
}

// Messages are the bot texts the runtime emits on its own behalf.
type Messages struct {
	Unavailable  string `yaml:"unavailable" default:"Chat is currently unavailable. Please try again later."`
	Farewell     string `yaml:"farewell" default:"Thank you for chatting with us!"`
	Apology      string `yaml:"apology" default:"Sorry, something went wrong on our side. Please try again."`
	InvalidInput string `yaml:"invalid_input" default:"That doesn't look right. Please try again."`
	// TicketCreated may contain {ticket}, replaced by the ticket number.
	TicketCreated string `yaml:"ticket_created" default:"Your ticket has been created. Your ticket number is {ticket}."`
	// BrokenLink is shown when a route points at a step the flow does not contain.
	BrokenLink string `yaml:"broken_link" default:"Sorry, this conversation can't continue right now. Thank you for chatting with us!"`
}

func (m Messages) ticketCreated(number string) string {
	return strings.ReplaceAll(m.TicketCreated, "{ticket}", number)
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	if err := ApplyDefaults(&cfg); err != nil {
		panic(fmt.Sprintf("runtime: default config: %v", err))
	}
	return cfg
}

// InitializeConfig prepares a config struct: defaults from struct tags, then the
// raw values (decoded by yaml tag), then validation.
func InitializeConfig(config any, rawValues map[string]any) error {
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := ValidateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers validation tags used by config structs
func registerCustomValidators() {
	// hostname_port validates "host:port" format with numeric port
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})

	// dsn accepts URL form (postgres://...) or key/value and user@host/db forms
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		if strings.Contains(s, "host=") || strings.Contains(s, "dbname=") {
			return true
		}
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

// ValidateConfig runs struct tag validation and flattens the errors into one message.
func ValidateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(validationMessages(err), "\n  - "))
	}

	return nil
}

func validationMessages(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf(
			"field '%s' failed validation: %s (rule: %s)",
			fieldErr.Namespace(),
			fieldErr.Error(),
			fieldErr.Tag(),
		))
	}
	return messages
}

func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
