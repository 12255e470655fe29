package catalog

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/schema"
	"github.com/leebenson/conform"
)

// Params are the raw parameters of a command, as collected by a user
// interface.
type Params map[string]interface{}

// Body is a typed request body. Validate runs the authoritative checks
// and is what the service applies to incoming requests.
type Body interface {
	validation.Validatable
}

// MaxDimension bounds the sizes and offsets, in pixels, of the resize
// and crop commands.
const MaxDimension = 100000

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
	decoder.SetAliasTag("json")
}

// ParseArgs reads "key=value" arguments into Params.
func ParseArgs(args []string) (Params, error) {
	res := Params{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf(`invalid parameter "%s", expected key=value`, a)
		}
		res[k] = v
	}
	return res, nil
}

// Values converts params to URL values. Numbers are written without
// exponent so that integral floats become integers.
func (p Params) Values() (url.Values, error) {
	res := url.Values{}
	for k, v := range p {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			res.Set(k, x)
		case bool:
			res.Set(k, strconv.FormatBool(x))
		case int:
			res.Set(k, strconv.Itoa(x))
		case int64:
			res.Set(k, strconv.FormatInt(x, 10))
		case float32:
			res.Set(k, strconv.FormatFloat(float64(x), 'f', -1, 32))
		case float64:
			res.Set(k, strconv.FormatFloat(x, 'f', -1, 64))
		case fmt.Stringer:
			res.Set(k, x.String())
		default:
			return nil, fmt.Errorf("parameter %s: unsupported type %T", k, v)
		}
	}
	return res, nil
}

// Keys returns the parameter names, sorted.
func (p Params) Keys() []string {
	res := make([]string, 0, len(p))
	for k := range p {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// Decode converts raw params into the command's typed body. Missing
// parameters take their default value. Range checks are not applied
// here, see Validate and Clamp.
func (c *Command) Decode(params Params) (Body, error) {
	values, err := params.Values()
	if err != nil {
		return nil, err
	}
	for _, p := range c.Params {
		if _, ok := values[p.Name]; !ok && p.Default != nil {
			values.Set(p.Name, fmt.Sprint(p.Default))
		}
	}

	body := c.newBody()
	if err := decoder.Decode(body, values); err != nil {
		return nil, decodeError(err)
	}
	if err := conform.Strings(body); err != nil {
		return nil, err
	}

	return body, nil
}

// Validate decodes params and runs the body checks.
func (c *Command) Validate(params Params) (Body, error) {
	body, err := c.Decode(params)
	if err != nil {
		return nil, err
	}
	return body, body.Validate()
}

// Clamp returns a copy of params where numeric values are brought
// back into their range and unknown choices are replaced by the
// default. Unknown parameters are dropped.
func (c *Command) Clamp(params Params) Params {
	res := Params{}
	for _, p := range c.Params {
		v, ok := params[p.Name]
		if !ok {
			continue
		}
		switch {
		case p.Ranged():
			f, err := toFloat(v)
			if err != nil {
				res[p.Name] = v
				continue
			}
			res[p.Name] = math.Max(p.Min, math.Min(p.Max, f))
		case p.Affordance == Choice:
			s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
			if !contains(p.Choices, s) {
				s = fmt.Sprint(p.Default)
			}
			res[p.Name] = s
		default:
			res[p.Name] = v
		}
	}
	return res
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func decodeError(err error) error {
	var merr schema.MultiError
	if !errors.As(err, &merr) {
		return err
	}

	keys := make([]string, 0, len(merr))
	for k := range merr {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msg := []string{}
	for _, k := range keys {
		var cerr schema.ConversionError
		if errors.As(merr[k], &cerr) {
			msg = append(msg, fmt.Sprintf("%s: invalid value", k))
			continue
		}
		msg = append(msg, fmt.Sprintf("%s: %s", k, merr[k]))
	}
	return errors.New(strings.Join(msg, "; "))
}

type (
	// NoParams is the body of commands without parameters.
	NoParams struct{}

	// RotateParams is the rotate body. The angle is in degrees,
	// clockwise.
	RotateParams struct {
		Angle float64 `json:"angle"`
	}

	// ResizeParams is the resize body. With AspectRatio, the size is
	// computed from Width, or from Height when Width is 0.
	ResizeParams struct {
		Width       int  `json:"width"`
		Height      int  `json:"height"`
		AspectRatio bool `json:"aspectRatio"`
	}

	// CropParams is the crop rectangle, in pixels.
	CropParams struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	}

	// WhiteBalanceParams is the white balance body.
	WhiteBalanceParams struct {
		Mode string `json:"mode" conform:"trim,lower"`
	}

	// BlurParams is the blur body.
	BlurParams struct {
		HalfWidth int `json:"half_width"`
	}

	// ContrastParams is the contrast body.
	ContrastParams struct {
		Amount float64 `json:"amount"`
	}

	// SaturationParams is the saturation body.
	SaturationParams struct {
		Amount float64 `json:"amount"`
	}

	// ToneParams is the tone body.
	ToneParams struct {
		Amount float64 `json:"amount"`
	}

	// FilterParams is the filter body.
	FilterParams struct {
		Filter string `json:"filter" conform:"trim,lower"`
	}
)

// Validate implements validation.Validatable.
func (p NoParams) Validate() error {
	return nil
}

// Validate implements validation.Validatable.
func (p RotateParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Angle, validation.Min(0.0), validation.Max(360.0)),
	)
}

// Validate implements validation.Validatable.
func (p ResizeParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Width,
			validation.Min(0), validation.Max(MaxDimension),
			validation.When(p.Height == 0, validation.Required.Error("width or height is required")),
		),
		validation.Field(&p.Height, validation.Min(0), validation.Max(MaxDimension)),
	)
}

// Validate implements validation.Validatable.
func (p CropParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.X, validation.Min(0), validation.Max(MaxDimension)),
		validation.Field(&p.Y, validation.Min(0), validation.Max(MaxDimension)),
		validation.Field(&p.Width, validation.Required, validation.Min(1), validation.Max(MaxDimension)),
		validation.Field(&p.Height, validation.Required, validation.Min(1), validation.Max(MaxDimension)),
	)
}

// Validate implements validation.Validatable.
func (p WhiteBalanceParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Mode, validation.Required, validation.In("gray", "white")),
	)
}

// Validate implements validation.Validatable.
func (p BlurParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.HalfWidth, validation.Min(0), validation.Max(15)),
	)
}

// Validate implements validation.Validatable.
func (p ContrastParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.Min(0.0), validation.Max(50.0)),
	)
}

// Validate implements validation.Validatable.
func (p SaturationParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.Min(-100.0), validation.Max(100.0)),
	)
}

// Validate implements validation.Validatable.
func (p ToneParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Amount, validation.Min(-50.0), validation.Max(50.0)),
	)
}

// Validate implements validation.Validatable.
func (p FilterParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Filter, validation.Required, validation.In("sepia", "grayscale", "ghost")),
	)
}
