package config

import (
	"fmt"
	"os"

	"github.com/airperm/aptfit/mods/nums/decay"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions available in configuration expressions.
var Functions = map[string]function.Function{
	"env":          GetEnvFunc,
	"envOrDefault": GetEnvOrDefaultFunc,
	"kelvin":       KelvinFunc,
	"upper":        stdlib.UpperFunc,
	"lower":        stdlib.LowerFunc,
	"min":          stdlib.MinFunc,
	"max":          stdlib.MaxFunc,
}

// Variables available in configuration expressions.
var Variables = map[string]cty.Value{
	"celsius_to_kelvin":  cty.NumberFloatVal(decay.CelsiusToKelvin),
	"ideal_room_celsius": cty.NumberFloatVal(decay.IdealRoomCelsius),
}

var GetEnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{
			Name:             "env",
			Type:             cty.String,
			AllowDynamicType: true,
		},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		in := args[0].AsString()
		out, ok := os.LookupEnv(in)
		if !ok {
			return cty.NilVal, fmt.Errorf("required env variable %s missing", in)
		}
		return cty.StringVal(out), nil
	},
})

var GetEnvOrDefaultFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{
			Name:             "env",
			Type:             cty.String,
			AllowDynamicType: true,
		},
		{
			Name:      "default",
			Type:      cty.String,
			AllowNull: true,
		},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		in := args[0].AsString()
		def := ""
		if !args[1].IsNull() {
			def = args[1].AsString()
		}
		out, ok := os.LookupEnv(in)
		if !ok {
			out = def
		}
		return cty.StringVal(out), nil
	},
})

// KelvinFunc converts degrees Celsius to Kelvin.
var KelvinFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{
			Name: "celsius",
			Type: cty.Number,
		},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return args[0].Add(cty.NumberFloatVal(decay.CelsiusToKelvin)), nil
	},
})
