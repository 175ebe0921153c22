package jobs

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"

	"github.com/jmgilman/oceanctl/internal/model"
	"github.com/jmgilman/oceanctl/internal/validate"
)

// ProfileParams configures the vertical profile diagnostics: thermocline,
// halocline, pycnocline and sound speed.
type ProfileParams struct {
	DatasetID       string  `json:"datasetId" validate:"required" jsonschema:"title=Dataset,minLength=1"`
	ParameterType   string  `json:"parameterType,omitempty" validate:"required,oneof=temperature salinity density sound_speed" jsonschema:"enum=temperature,enum=salinity,enum=density,enum=sound_speed"`
	MinGradient     float64 `json:"minGradient" validate:"gt=0" jsonschema:"exclusiveMinimum=0,description=Minimum vertical gradient"`
	SmoothingWindow int     `json:"smoothingWindow" validate:"gte=1" jsonschema:"minimum=1,description=Smoothing window in samples"`
	DetectionMethod string  `json:"detectionMethod" validate:"required,oneof=gradient threshold wavelet" jsonschema:"enum=gradient,enum=threshold,enum=wavelet"`
}

// EddyParams configures mesoscale eddy detection.
type EddyParams struct {
	DatasetID       string  `json:"datasetId" validate:"required" jsonschema:"title=Dataset,minLength=1"`
	SSHVariable     string  `json:"sshVariable" validate:"required" jsonschema:"minLength=1,description=Sea surface height variable"`
	MinAmplitude    float64 `json:"minAmplitude" validate:"gt=0" jsonschema:"exclusiveMinimum=0,description=Minimum amplitude in meters"`
	MinRadius       float64 `json:"minRadius" validate:"gte=10" jsonschema:"minimum=10,description=Minimum radius in kilometers"`
	DetectionMethod string  `json:"detectionMethod" validate:"required,oneof=okubo-weiss geometric winding-angle" jsonschema:"enum=okubo-weiss,enum=geometric,enum=winding-angle"`
}

// FrontParams configures ocean front detection.
type FrontParams struct {
	DatasetID string  `json:"datasetId" validate:"required" jsonschema:"title=Dataset,minLength=1"`
	Variable  string  `json:"variable" validate:"required,oneof=temperature salinity density sound_speed" jsonschema:"enum=temperature,enum=salinity,enum=density,enum=sound_speed"`
	Threshold float64 `json:"threshold" validate:"gt=0" jsonschema:"exclusiveMinimum=0"`
	MinLength float64 `json:"minLength" validate:"gte=10" jsonschema:"minimum=10,description=Minimum front length in kilometers"`
	Method    string  `json:"method" validate:"required,oneof=gradient histogram belkin-oneill" jsonschema:"enum=gradient,enum=histogram,enum=belkin-oneill"`
}

// InternalWaveParams configures internal wave statistics.
type InternalWaveParams struct {
	DatasetID      string `json:"datasetId" validate:"required" jsonschema:"title=Dataset,minLength=1"`
	RegionType     string `json:"regionType" validate:"required,oneof=bbox polygon predefined" jsonschema:"enum=bbox,enum=polygon,enum=predefined"`
	AnalysisMethod string `json:"analysisMethod" validate:"required,oneof=spectral wavelet eof" jsonschema:"enum=spectral,enum=wavelet,enum=eof"`
	OutputType     string `json:"outputType" validate:"required,oneof=statistics spectrum spatial" jsonschema:"enum=statistics,enum=spectrum,enum=spatial"`
}

// Endpoint returns the submission endpoint for t.
func Endpoint(t model.DiagnosticType) (string, error) {
	switch t {
	case model.DiagnosticThermocline, model.DiagnosticHalocline,
		model.DiagnosticPycnocline, model.DiagnosticSoundSpeed:
		return "thermocline", nil
	case model.DiagnosticMesoscaleEddy:
		return "eddy", nil
	case model.DiagnosticOceanFront:
		return "front", nil
	case model.DiagnosticInternalWave:
		return "internal-wave", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// newParams returns a pointer to an empty parameter struct for t.
func newParams(t model.DiagnosticType) (any, error) {
	switch t {
	case model.DiagnosticThermocline, model.DiagnosticHalocline,
		model.DiagnosticPycnocline, model.DiagnosticSoundSpeed:
		return &ProfileParams{}, nil
	case model.DiagnosticMesoscaleEddy:
		return &EddyParams{}, nil
	case model.DiagnosticOceanFront:
		return &FrontParams{}, nil
	case model.DiagnosticInternalWave:
		return &InternalWaveParams{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// defaultParameterType is the profile variable implied by each profile
// diagnostic.
var defaultParameterType = map[model.DiagnosticType]string{
	model.DiagnosticThermocline: "temperature",
	model.DiagnosticHalocline:   "salinity",
	model.DiagnosticPycnocline:  "density",
	model.DiagnosticSoundSpeed:  "sound_speed",
}

// Decode converts raw into the parameter struct of t and validates it. Every
// offending field is reported in a single *validate.ValidationError. The
// returned value is a pointer to one of the *Params types.
func Decode(t model.DiagnosticType, raw map[string]any) (any, error) {
	params, err := newParams(t)
	if err != nil {
		return nil, err
	}

	verr := &validate.ValidationError{}
	input := coerce(raw, reflect.TypeOf(params).Elem(), verr)

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           params,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}

	unused := md.Unused
	sort.Strings(unused)
	for _, key := range unused {
		verr.Add(key, "unknown", "", "is not a parameter of "+string(t))
	}

	if p, ok := params.(*ProfileParams); ok && p.ParameterType == "" {
		p.ParameterType = defaultParameterType[t]
	}

	if err := validate.Struct(params); err != nil {
		fields, ok := validate.AsValidation(err)
		if !ok {
			return nil, err
		}
		for _, f := range fields.Fields {
			if !verr.Has(f.Field) {
				verr.Fields = append(verr.Fields, f)
			}
		}
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}
	return params, nil
}

// coerce normalizes numeric inputs for the fields of t. Values arriving as
// strings (command line) or float64 (JSON) are converted to the field's kind;
// non-integral values for integer fields and non-numbers for numeric fields
// are recorded in verr and dropped. Null values are treated as absent.
func coerce(raw map[string]any, t reflect.Type, verr *validate.ValidationError) map[string]any {
	kinds := make(map[string]reflect.Kind, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		kinds[name] = f.Type.Kind()
	}

	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(map[string]any, len(raw))
	for _, name := range names {
		v := raw[name]
		if v == nil {
			continue
		}
		kind, known := kinds[name]
		if !known {
			out[name] = v
			continue
		}

		switch kind {
		case reflect.Int:
			n, ok := number(v)
			switch {
			case !ok:
				verr.Add(name, "number", "", "must be a number")
			case n != math.Trunc(n):
				verr.Add(name, "integer", "", "must be an integer")
			default:
				out[name] = int(n)
			}
		case reflect.Float64:
			n, ok := number(v)
			if !ok {
				verr.Add(name, "number", "", "must be a number")
				continue
			}
			out[name] = n
		default:
			out[name] = v
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// body renders params as the request body for t. The diagnostic type is
// included so the service can tell the profile diagnostics apart.
func body(t model.DiagnosticType, name string, params any) (map[string]any, error) {
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &out})
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	out["diagnosticType"] = string(t)
	if name != "" {
		out["name"] = name
	}
	return out, nil
}

// Schema returns the JSON Schema of the parameters accepted for t.
func Schema(t model.DiagnosticType) (*jsonschema.Schema, error) {
	params, err := newParams(t)
	if err != nil {
		return nil, err
	}

	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(params)
	s.Title = string(t)
	s.AdditionalProperties = jsonschema.FalseSchema

	if p, ok := defaultParameterType[t]; ok {
		if prop, ok := s.Properties.Get("parameterType"); ok {
			prop.Default = p
		}
	}
	return s, nil
}
