// Package export writes the edited timeline as a CMX3600 edit decision list
// so it can be conformed in an NLE.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

const FormatEDL = "edl"

// Events lists the visible elements of every media track in record order.
// Elements whose media asset is missing are returned by ID in unresolved.
func Events(tl *timeline.Timeline) (events []Event, unresolved []string) {
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			if el.VisibleDuration() <= timeline.Epsilon {
				continue
			}
			asset, ok := tl.MediaAsset(el.MediaID)
			if !ok {
				unresolved = append(unresolved, el.ID)
				continue
			}
			name := el.Name
			if name == "" {
				name = asset.Name
			}
			events = append(events, Event{
				Reel:      reelName(asset),
				ClipName:  SanitizeName(name, 64),
				MediaPath: asset.Path,
				SourceIn:  el.TrimStart,
				SourceOut: el.Duration - el.TrimEnd,
				RecordIn:  el.StartTime,
				RecordOut: el.End(),
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordIn < events[j].RecordIn
	})
	return events, unresolved
}

func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(timeline.DefaultFPS)
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		reel := ev.Reel
		if reel == "" {
			reel = "AX"
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reel, "V",
				toTimecode(ev.SourceIn, fps), toTimecode(ev.SourceOut, fps),
				toTimecode(ev.RecordIn, fps), toTimecode(ev.RecordOut, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// Write renders tl into dir as <title>.edl.
func Write(dir, title string, tl *timeline.Timeline) (*Result, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	base := SanitizeName(title, 64)
	if base == "" {
		base = "timeline"
	}
	events, unresolved := Events(tl)
	path := filepath.Join(dir, base+".edl")
	if err := os.WriteFile(path, []byte(GenerateEDL(events, title, tl.FrameRate())), 0o644); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}
	return &Result{Path: path, Format: FormatEDL, EventCount: len(events), Unresolved: unresolved}, nil
}

func toTimecode(seconds float64, fps int) string {
	totalFrames := int(math.Round(seconds * float64(fps)))
	if totalFrames < 0 {
		totalFrames = 0
	}
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}

// reelName derives an eight character CMX reel from the asset name.
func reelName(asset timeline.MediaAsset) string {
	src := asset.Name
	if src == "" {
		src = filepath.Base(asset.Path)
	}
	src = strings.TrimSuffix(src, filepath.Ext(src))
	var b strings.Builder
	for _, r := range strings.ToUpper(src) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 8 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "AX"
	}
	return b.String()
}
