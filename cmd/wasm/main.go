//go:build js && wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/acousticprint/internal/fingerprint"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorSilent
	ErrorTooShort
	ErrorNoLandmarks
)

var generator *fingerprint.Generator

// generateFingerprint(samples, sampleRate, channels) fingerprints interleaved
// PCM in [-1, 1] at the catalog's sample rate.
// Returns: {error: number, data: array | string}
func generateFingerprint(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}
	audioJS, rateJS, channelsJS := args[0], args[1], args[2]
	if audioJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float64Array")
	}
	if rateJS.Type() != js.TypeNumber || channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate and channels must be numbers")
	}

	sampleRate, channels := rateJS.Int(), channelsJS.Int()
	if want := generator.Config().SampleRate; sampleRate != want {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("sample rate must be %d Hz, got %d", want, sampleRate))
	}
	if channels < 1 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("invalid channel count %d", channels))
	}

	n := audioJS.Length()
	interleaved := make([]float64, n)
	for i := range n {
		v := audioJS.Index(i)
		if v.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		interleaved[i] = v.Float()
	}

	res, err := generator.Fingerprint(context.Background(), fingerprint.Waveform{
		Samples:    fingerprint.MixDown(interleaved, channels),
		SampleRate: sampleRate,
	})
	switch {
	case errors.Is(err, fingerprint.ErrEmptyAudio):
		return makeErrorResponse(ErrorSilent, err.Error())
	case errors.Is(err, fingerprint.ErrAudioTooShort):
		return makeErrorResponse(ErrorTooShort, err.Error())
	case errors.Is(err, fingerprint.ErrNoLandmarks):
		return makeErrorResponse(ErrorNoLandmarks, err.Error())
	case err != nil:
		return makeErrorResponse(ErrorProcessing, err.Error())
	}

	out := js.Global().Get("Array").New(len(res.Fingerprints))
	for i, fp := range res.Fingerprints {
		obj := js.Global().Get("Object").New()
		obj.Set("hash", fp.Hash)
		obj.Set("anchorTime", fp.AnchorTimeMs)
		out.SetIndex(i, obj)
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", out)
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")

	var err error
	generator, err = fingerprint.NewGenerator(fingerprint.DefaultConfig(), 1)
	if err != nil {
		console.Call("error", fmt.Sprintf("acousticprint: %v", err))
		return
	}

	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))

	if window := js.Global().Get("window"); !window.IsUndefined() {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}
	console.Call("log", "acousticprint WASM module ready")

	select {}
}
