package compose

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gatekeeper/pkg/validation"
)

var durationType = reflect.TypeFor[time.Duration]()

// bindQuery fills the exported fields of dst (a pointer to struct) from
// values, using the `query` tag or the lowercased field name. Conversion
// failures are reported per field.
func bindQuery(values url.Values, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("query schema must be a struct, got %T", dst)
	}
	v = v.Elem()
	t := v.Type()

	var fieldErrs []validation.FieldError
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("query"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := setField(v.Field(i), raw); err != nil {
			fieldErrs = append(fieldErrs, validation.FieldError{
				Field:   name,
				Message: fmt.Sprintf("%s %s", name, err.Error()),
			})
		}
	}
	if len(fieldErrs) > 0 {
		return &validation.Errors{Fields: fieldErrs}
	}
	return nil
}

func setField(f reflect.Value, raw []string) error {
	if f.Kind() == reflect.Pointer {
		elem := reflect.New(f.Type().Elem())
		if err := setField(elem.Elem(), raw); err != nil {
			return err
		}
		f.Set(elem)
		return nil
	}
	if f.Kind() == reflect.Slice {
		out := reflect.MakeSlice(f.Type(), 0, len(raw))
		for _, s := range raw {
			elem := reflect.New(f.Type().Elem()).Elem()
			if err := setScalar(elem, s); err != nil {
				return err
			}
			out = reflect.Append(out, elem)
		}
		f.Set(out)
		return nil
	}
	return setScalar(f, raw[0])
}

func setScalar(f reflect.Value, s string) error {
	if f.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.New("must be a duration")
		}
		f.SetInt(int64(d))
		return nil
	}

	switch f.Kind() {
	case reflect.String:
		f.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.New("must be a boolean")
		}
		f.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, f.Type().Bits())
		if err != nil {
			return errors.New("must be an integer")
		}
		f.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, f.Type().Bits())
		if err != nil {
			return errors.New("must be a non-negative integer")
		}
		f.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, f.Type().Bits())
		if err != nil {
			return errors.New("must be a number")
		}
		f.SetFloat(n)
	default:
		return fmt.Errorf("has unsupported type %s", f.Type())
	}
	return nil
}
