package alerts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"

	"github.com/agentstation/syncflow/internal/cmd/output"
)

// FormatWriter writes alerts in different output formats.
type FormatWriter struct {
	writer io.Writer
	format output.Format
	config WriterConfig
}

// WriterConfig configures alert output behavior.
type WriterConfig struct {
	ShowTimestamp bool
	ShowDetails   bool
	UseColor      bool
}

// NewFormatWriter creates a new FormatWriter for the specified format.
func NewFormatWriter(w io.Writer, format output.Format) *FormatWriter {
	return &FormatWriter{
		writer: w,
		format: format,
		config: WriterConfig{
			ShowDetails: true,
			UseColor:    isTerminal(w),
		},
	}
}

// WithConfig sets the writer configuration.
func (fw *FormatWriter) WithConfig(config WriterConfig) *FormatWriter {
	fw.config = config
	return fw
}

// WriteAlert writes an alert in the configured format.
func (fw *FormatWriter) WriteAlert(alert *Alert) error {
	switch fw.format {
	case output.FormatJSON:
		return fw.writeJSON(alert)
	case output.FormatYAML:
		return fw.writeYAML(alert)
	default:
		return fw.writeText(alert)
	}
}

// alertData represents alert data for structured output.
type alertData struct {
	Level     string   `json:"level" yaml:"level"`
	Message   string   `json:"message" yaml:"message"`
	Details   []string `json:"details,omitempty" yaml:"details,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

func (fw *FormatWriter) toAlertData(alert *Alert) alertData {
	data := alertData{
		Level:   alert.Level.String(),
		Message: alert.Message,
		Details: alert.Details,
	}
	if alert.Err != nil {
		data.Error = alert.Err.Error()
	}
	if fw.config.ShowTimestamp {
		data.Timestamp = alert.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}
	return data
}

func (fw *FormatWriter) writeJSON(alert *Alert) error {
	encoder := json.NewEncoder(fw.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(fw.toAlertData(alert))
}

func (fw *FormatWriter) writeYAML(alert *Alert) error {
	data, err := yaml.MarshalWithOptions(fw.toAlertData(alert), yaml.Indent(2))
	if err != nil {
		return err
	}
	_, err = fw.writer.Write(data)
	return err
}

func (fw *FormatWriter) writeText(alert *Alert) error {
	message := alert.String()
	if fw.config.UseColor {
		message = alert.Level.Color() + message + ResetColor()
	}
	if _, err := fmt.Fprintln(fw.writer, message); err != nil {
		return err
	}

	if fw.config.ShowDetails {
		for _, detail := range alert.Details {
			if _, err := fmt.Fprintf(fw.writer, "   %s\n", detail); err != nil {
				return err
			}
		}
	}
	return nil
}

// isTerminal checks if the writer is a terminal (for color support).
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
