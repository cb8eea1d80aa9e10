package trace

import "go.opentelemetry.io/otel/attribute"

// Attribute keys.
const (
	AttrLoopState  = "loop.state"
	AttrLoopPeriod = "loop.period_ms"
	AttrLoopFrame  = "loop.frame"

	AttrAudioPitch = "audio.pitch"
	AttrAudioPower = "audio.power"
	AttrAudioNote  = "audio.note"

	AttrBindingName = "binding.name"
	AttrBindingID   = "binding.id"
	AttrScriptBytes = "binding.script_bytes"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// BindingAttrs creates attributes identifying a loaded binding
func BindingAttrs(name, id string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBindingName, name),
		attribute.String(AttrBindingID, id),
	}
}

// AnalysisAttrs creates attributes for one analysis result
func AnalysisAttrs(pitch, power float64, note string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(AttrAudioPitch, pitch),
		attribute.Float64(AttrAudioPower, power),
		attribute.String(AttrAudioNote, note),
	}
}

// ScriptLoadAttrs describes a script file about to be loaded.
func ScriptLoadAttrs(name string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBindingName, name),
		attribute.Int64(AttrScriptBytes, size),
	}
}

// ErrorAttrs creates attributes for errors
func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}
