package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "DSICMD_"

var durationType = reflect.TypeOf(time.Duration(0))

// binding ties one options field to its sources.
type binding struct {
	field reflect.Value
	toml  string
	env   string
}

// LoadConfig fills opts, a pointer to a flat options struct, from the TOML
// file named by its Config field and then from DSICMD_* environment
// variables. Fields whose flag was set on cmd keep the CLI value, so the
// precedence is CLI > env > file > default.
//
// A missing file is not an error. Values that do not fit their field are
// skipped and reported together in the returned error.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	bindings := bindFields(v, changedFlags(cmd))

	var errs []error
	if path := configPath(v); path != "" {
		doc, err := readTOML(path)
		if err != nil {
			return err
		}
		for _, b := range bindings {
			if b.toml == "" {
				continue
			}
			if raw, ok := lookup(doc, b.toml); ok {
				if err := assign(b.field, raw); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", b.toml, err))
				}
			}
		}
	}

	for _, b := range bindings {
		if b.env == "" {
			continue
		}
		if raw := os.Getenv(EnvPrefix + b.env); raw != "" {
			if err := assign(b.field, raw); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.env, err))
			}
		}
	}
	return errors.Join(errs...)
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// bindFields lists the settable fields of v that the CLI did not set.
func bindFields(v reflect.Value, changed map[string]bool) []binding {
	t := v.Type()
	bindings := make([]binding, 0, t.NumField())
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() || changed[fieldNameToFlag(sf.Name)] {
			continue
		}
		bindings = append(bindings, binding{
			field: v.Field(i),
			toml:  sf.Tag.Get("toml"),
			env:   sf.Tag.Get("env"),
		})
	}
	return bindings
}

func configPath(v reflect.Value) string {
	f := v.FieldByName("Config")
	if !f.IsValid() || f.Kind() != reflect.String {
		return ""
	}
	return f.String()
}

func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}
	return doc, nil
}

// fieldNameToFlag converts a struct field name to the kebab-case flag name
// humacli derives from it: "LoggingLevel" -> "logging-level",
// "PanelTEPin" -> "panel-te-pin".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var sb strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			sb.WriteByte('-')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// lookup walks a dotted path ("panel.refresh_rate") through nested tables.
func lookup(doc map[string]any, path string) (any, bool) {
	keys := strings.Split(path, ".")
	table := doc
	for _, k := range keys[:len(keys)-1] {
		next, ok := table[k].(map[string]any)
		if !ok {
			return nil, false
		}
		table = next
	}
	v, ok := table[keys[len(keys)-1]]
	return v, ok
}

// assign stores raw in field. raw is either a decoded TOML value or an
// environment string, which is parsed according to the field type.
func assign(field reflect.Value, raw any) error {
	if !field.CanSet() {
		return nil
	}
	if s, ok := raw.(string); ok && field.Kind() != reflect.String {
		return assignString(field, s)
	}

	if field.Type() == durationType {
		return fmt.Errorf("duration must be a string like \"250ms\", got %T", raw)
	}

	switch field.Kind() {
	case reflect.String, reflect.Bool:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != field.Kind() {
			return fmt.Errorf("want %s, got %T", field.Kind(), raw)
		}
		field.Set(rv.Convert(field.Type()))
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, ok := raw.(int64)
		if !ok {
			return fmt.Errorf("want integer, got %T", raw)
		}
		field.SetInt(n)
	case reflect.Float64:
		switch f := raw.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		default:
			return fmt.Errorf("want number, got %T", raw)
		}
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("want list of strings, got %T", raw)
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("want list of strings, got element %T", it)
			}
			out = append(out, s)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// assignString parses an environment value (or a TOML string) into field.
func assignString(field reflect.Value, s string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported field type %s", field.Type())
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
