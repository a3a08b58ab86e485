package subtasks

import (
	"math"
	"slices"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/pipelines"
)

// VADConfig tunes the local energy-based voice activity detector.
type VADConfig struct {
	FrameMs       int
	Percentile    float64 // noise estimate percentile in [0,1]
	Multiplier    float64 // threshold = percentile energy * Multiplier
	Floor         float64 // minimum RMS threshold, on the int16 sample scale
	OpenMs        int     // continuous activity needed to open a speech region
	CloseMs       int     // continuous silence needed to close one
	MinConfidence float64
}

// DefaultVADConfig sets the threshold to the 20th-percentile frame energy
// times 3, but never below an RMS of 50 (about -56 dBFS). Without the floor,
// digital silence gives a zero threshold and any dither or hiss reads as speech.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		FrameMs:       10,
		Percentile:    0.2,
		Multiplier:    3,
		Floor:         50,
		OpenMs:        200,
		CloseMs:       150,
		MinConfidence: 0.5,
	}
}

// VADResult is the detected speech window in seconds from the start of the
// analysed audio.
type VADResult struct {
	SpeechDetected bool
	SpeechStart    float64
	SpeechEnd      float64
	Confidence     float64
	Threshold      float64
	Duration       float64
}

// Accepted reports whether the result is trustworthy enough to trim with.
func (r VADResult) Accepted(cfg VADConfig) bool {
	return r.SpeechDetected && r.SpeechEnd > r.SpeechStart && r.Confidence >= cfg.MinConfidence
}

// DetectSpeech finds the first and last speech regions. Confidence is the
// share of active frames inside the detected window.
func DetectSpeech(pcm *pipelines.PCM, cfg VADConfig) VADResult {
	res := VADResult{Duration: pcm.Duration()}
	frameLen := pcm.SampleRate * cfg.FrameMs / 1000
	if frameLen <= 0 || len(pcm.Samples) < frameLen {
		return res
	}

	energies := frameEnergies(pcm.Samples, frameLen)
	res.Threshold = math.Max(percentile(energies, cfg.Percentile)*cfg.Multiplier, cfg.Floor)

	active := make([]bool, len(energies))
	for i, e := range energies {
		active[i] = e >= res.Threshold
	}

	openFrames := max(1, cfg.OpenMs/cfg.FrameMs)
	closeFrames := max(1, cfg.CloseMs/cfg.FrameMs)
	regions := hysteresis(active, openFrames, closeFrames)
	if len(regions) == 0 {
		return res
	}

	first, last := regions[0][0], regions[len(regions)-1][1]
	var hits int
	for _, a := range active[first:last] {
		if a {
			hits++
		}
	}

	frameSec := float64(cfg.FrameMs) / 1000
	res.SpeechDetected = true
	res.SpeechStart = float64(first) * frameSec
	res.SpeechEnd = math.Min(float64(last)*frameSec, res.Duration)
	res.Confidence = float64(hits) / float64(last-first)
	return res
}

// hysteresis returns [start,end) frame regions. A region opens at the first
// frame of a run of at least openFrames active frames and closes at the first
// frame of a run of at least closeFrames inactive frames.
func hysteresis(active []bool, openFrames, closeFrames int) [][2]int {
	var (
		regions [][2]int
		inside  bool
		start   int
		run     int
		runFrom int
	)
	for i, a := range active {
		if a != inside {
			if run == 0 {
				runFrom = i
			}
			run++
		} else {
			run = 0
		}

		switch {
		case !inside && run >= openFrames:
			inside, start, run = true, runFrom, 0
		case inside && run >= closeFrames:
			inside, run = false, 0
			regions = append(regions, [2]int{start, runFrom})
		}
	}
	if inside {
		end := len(active)
		if run > 0 {
			end = runFrom
		}
		regions = append(regions, [2]int{start, end})
	}
	return regions
}

func frameEnergies(samples []int16, frameLen int) []float64 {
	n := len(samples) / frameLen
	out := make([]float64, n)
	for i := range n {
		var sum float64
		for _, s := range samples[i*frameLen : (i+1)*frameLen] {
			v := float64(s)
			sum += v * v
		}
		out[i] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	idx := int(math.Round(p * float64(len(sorted)-1)))
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
