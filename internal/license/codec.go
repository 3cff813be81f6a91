package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v2"

	"pvcli/internal/envelope"
	"pvcli/internal/security"
)

// DefaultLabel is the boundary label used when the caller does not supply
// one. The marker text is an external contract: changing it invalidates
// licenses already in the field.
const DefaultLabel = "PULLVIEW LICENSE"

// dateLayout is the wire form of date-typed attribute values.
const dateLayout = "2006-01-02"

// ParseError reports a decrypted payload that is not well-formed attribute
// text.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("license parse: %s: %v", e.Reason, e.Err)
	}
	return "license parse: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Codec ties the layers together: schema validation, canonical attribute
// serialization, hybrid encryption, and boundary framing. Key material is
// owned by the caller-supplied keyring, never by package-level state.
type Codec struct {
	keys    *security.Keyring
	enc     *security.Encryptor
	schema  Schema
	label   string
	logger  *slog.Logger
	metrics *Metrics
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithSchema replaces the default attribute schema.
func WithSchema(schema Schema) CodecOption {
	return func(c *Codec) { c.schema = schema }
}

// WithLabel sets the default boundary label for exports.
func WithLabel(label string) CodecOption {
	return func(c *Codec) { c.label = label }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) CodecOption {
	return func(c *Codec) { c.logger = logger }
}

// WithMetrics wires codec operation metrics.
func WithMetrics(m *Metrics) CodecOption {
	return func(c *Codec) { c.metrics = m }
}

// NewCodec creates a codec reading key material through keys.
func NewCodec(keys *security.Keyring, opts ...CodecOption) *Codec {
	c := &Codec{
		keys:   keys,
		enc:    security.NewEncryptor(keys),
		schema: DefaultSchema(),
		label:  DefaultLabel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "license"))
	return c
}

// Schema returns the codec's attribute schema.
func (c *Codec) Schema() Schema {
	return c.schema
}

// Export validates record, serializes its attributes to canonical text,
// encrypts with private-capable key material, and frames the result with
// label (the codec default when label is empty). Export fails closed: no
// blob is ever emitted for an invalid record.
func (c *Codec) Export(ctx context.Context, record *Record, label string) (string, error) {
	start := time.Now()
	if label == "" {
		label = c.label
	}

	text, err := c.export(record, label)
	if c.metrics != nil {
		c.metrics.recordExport(ctx, time.Since(start), err)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "license export failed",
			slog.String("label", label),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	c.logger.InfoContext(ctx, "license exported",
		slog.String("label", label),
		slog.Int("attributes", len(record.Attributes)),
	)
	return text, nil
}

func (c *Codec) export(record *Record, label string) (string, error) {
	if err := c.schema.Validate(record); err != nil {
		return "", err
	}

	payload, err := c.serialize(record)
	if err != nil {
		return "", err
	}

	blob, err := c.enc.Encrypt(payload)
	if err != nil {
		return "", err
	}

	return envelope.Wrap(blob, label)
}

// Import strips the boundary frame, decrypts with public-capable key
// material, parses the attribute text, and constructs a record. It does
// not validate the record or check expiration; callers gate on those
// separately. Framing, decryption, and parse failures propagate as their
// typed errors rather than yielding a record built from garbage.
func (c *Codec) Import(ctx context.Context, text string) (*Record, error) {
	start := time.Now()
	record, err := c.importText(text)
	if c.metrics != nil {
		c.metrics.recordImport(ctx, time.Since(start), err)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "license import failed",
			slog.String("stage", importStage(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.DebugContext(ctx, "license imported",
		slog.Int("attributes", len(record.Attributes)),
	)
	return record, nil
}

func (c *Codec) importText(text string) (*Record, error) {
	blob, err := envelope.Unwrap(text)
	if err != nil {
		return nil, err
	}

	payload, err := c.enc.Decrypt(blob)
	if err != nil {
		return nil, err
	}

	raw, err := c.parse(payload)
	if err != nil {
		return nil, err
	}
	return NewRecord(raw, c.schema), nil
}

// serialize encodes the record's attributes as canonical YAML: string
// values verbatim, date values in ISO-8601 date form, keys in lexical
// order.
func (c *Codec) serialize(record *Record) ([]byte, error) {
	flat := make(map[string]string, len(record.Attributes))
	for key, value := range record.Attributes {
		switch v := value.(type) {
		case string:
			flat[key] = v
		case time.Time:
			flat[key] = v.Format(dateLayout)
		default:
			return nil, &ValidationError{
				Reason: fmt.Sprintf("attribute %q has unsupported value type %T", key, value),
			}
		}
	}

	payload, err := yaml.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("serialize attributes: %w", err)
	}
	return payload, nil
}

// parse decodes attribute text and re-types date fields, so expires_at
// comes back as a date value rather than a string. A date field that does
// not parse is left as a string for the validator to flag.
func (c *Codec) parse(payload []byte) (map[string]any, error) {
	flat := make(map[string]string)
	if err := yaml.Unmarshal(payload, &flat); err != nil {
		return nil, &ParseError{Reason: "payload is not well-formed attribute text", Err: err}
	}

	raw := make(map[string]any, len(flat))
	for key, value := range flat {
		if c.schema.isDateField(key) {
			if d, err := time.Parse(dateLayout, value); err == nil {
				raw[key] = d
				continue
			}
		}
		raw[key] = value
	}
	return raw, nil
}

// importStage names the pipeline stage an import error belongs to, for
// logs and metrics.
func importStage(err error) string {
	switch err.(type) {
	case *envelope.FramingError:
		return "framing"
	case *security.DecryptionError:
		return "decrypt"
	case *ParseError:
		return "parse"
	case *security.KeySourceError:
		return "key_load"
	default:
		return "unknown"
	}
}
