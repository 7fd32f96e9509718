package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/battconv/battconv/internal/task"
)

// SubtitleEntry is one timed caption line, already offset-adjusted.
type SubtitleEntry struct {
	Index   int
	StartS  float64
	EndS    float64
	Text    string
}

// ApplyOffset shifts every entry by offsetS (OutputConfig.subtitle_offset),
// clamping negative results to zero rather than producing negative timestamps.
func ApplyOffset(entries []SubtitleEntry, offsetS float64) []SubtitleEntry {
	if offsetS == 0 {
		return entries
	}
	out := make([]SubtitleEntry, len(entries))
	for i, e := range entries {
		e.StartS += offsetS
		e.EndS += offsetS
		if e.StartS < 0 {
			e.StartS = 0
		}
		if e.EndS < 0 {
			e.EndS = 0
		}
		out[i] = e
	}
	return out
}

// RenderSubtitle formats entries in the requested sidecar format. SRT is
// the canonical form an engine hands back; the others are derived
// from it so every HTTP/streaming engine gets lrc/vtt/ass/ssa support
// for free regardless of what the source API natively emits.
func RenderSubtitle(entries []SubtitleEntry, format task.SubtitleFormat, style map[string]string) string {
	switch format {
	case task.SubtitleLRC:
		return renderLRC(entries)
	case task.SubtitleVTT:
		return renderVTT(entries)
	case task.SubtitleASS, task.SubtitleSSA:
		return renderASS(entries, style)
	default:
		return renderSRT(entries)
	}
}

func renderSRT(entries []SubtitleEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", e.Index, srtTimestamp(e.StartS), srtTimestamp(e.EndS), e.Text)
	}
	return sb.String()
}

func renderVTT(entries []SubtitleEntry) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s --> %s\n%s\n\n", vttTimestamp(e.StartS), vttTimestamp(e.EndS), e.Text)
	}
	return sb.String()
}

func renderLRC(entries []SubtitleEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%s]%s\n", lrcTimestamp(e.StartS), e.Text)
	}
	return sb.String()
}

// renderASS emits a minimal Advanced SubStation Alpha / SubStation Alpha
// script; style keys recognized: font_name, font_size, primary_colour.
func renderASS(entries []SubtitleEntry, style map[string]string) string {
	fontName := style["font_name"]
	if fontName == "" {
		fontName = "Arial"
	}
	fontSize := style["font_size"]
	if fontSize == "" {
		fontSize = "20"
	}
	colour := style["primary_colour"]
	if colour == "" {
		colour = "&H00FFFFFF"
	}

	var sb strings.Builder
	sb.WriteString("[Script Info]\nScriptType: v4.00+\n\n")
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, Alignment\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%s,%s,2\n\n", fontName, fontSize, colour)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Text\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,%s\n", assTimestamp(e.StartS), assTimestamp(e.EndS), e.Text)
	}
	return sb.String()
}

func srtTimestamp(s float64) string {
	h, m, sec, ms := splitDuration(s)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}

func vttTimestamp(s float64) string {
	h, m, sec, ms := splitDuration(s)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms)
}

func assTimestamp(s float64) string {
	h, m, sec, ms := splitDuration(s)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, sec, ms/10)
}

func lrcTimestamp(s float64) string {
	_, m, sec, ms := splitDuration(s)
	return fmt.Sprintf("%02d:%02d.%02d", m, sec, ms/10)
}

func splitDuration(s float64) (h, m, sec, ms time.Duration) {
	if s < 0 {
		s = 0
	}
	total := time.Duration(s * float64(time.Second))
	h = total / time.Hour
	total -= h * time.Hour
	m = total / time.Minute
	total -= m * time.Minute
	sec = total / time.Second
	total -= sec * time.Second
	ms = total / time.Millisecond
	return
}

// parseSRT reads back the SRT a streaming engine handed the pipeline so
// it can be re-rendered into whatever sidecar format out.SubtitleFormat
// requests. Malformed blocks are skipped rather than failing the task —
// a missing subtitle is recoverable, a failed conversion is not.
func parseSRT(content string) []SubtitleEntry {
	var entries []SubtitleEntry
	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		start, end, ok := parseSRTTimeRange(lines[1])
		if !ok {
			continue
		}
		text := strings.Join(lines[2:], "\n")
		entries = append(entries, SubtitleEntry{Index: index, StartS: start, EndS: end, Text: text})
	}
	return entries
}

func parseSRTTimeRange(line string) (start, end float64, ok bool) {
	parts := strings.SplitN(line, " --> ", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, sok := parseSRTTimestamp(strings.TrimSpace(parts[0]))
	end, eok := parseSRTTimestamp(strings.TrimSpace(parts[1]))
	return start, end, sok && eok
}

func parseSRTTimestamp(ts string) (float64, bool) {
	ts = strings.Replace(ts, ",", ".", 1)
	var h, m int
	var sec float64
	n, err := fmt.Sscanf(ts, "%d:%d:%f", &h, &m, &sec)
	if n != 3 || err != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(m)*60 + sec, true
}
