// Package pipeline runs a single task's synthesis: stage sequencing,
// time estimation, audio post-processing and subtitle emission
// duties.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/battconv/battconv/internal/task"
)

var (
	illegalChars  = regexp.MustCompile(`[<>:"|?*\\/]`)
	multiSpace    = regexp.MustCompile(`\s+`)
	multiDot      = regexp.MustCompile(`\.+`)
)

// cleanFilenameComponent strips characters that are illegal on common
// filesystems and collapses whitespace/dot runs; an input that cleans
// away to nothing becomes "unnamed".
func cleanFilenameComponent(name string) string {
	clean := illegalChars.ReplaceAllString(name, "_")
	clean = multiSpace.ReplaceAllString(clean, " ")
	clean = multiDot.ReplaceAllString(clean, ".")
	clean = strings.Trim(clean, " .")
	if clean == "" {
		clean = "unnamed"
	}
	return clean
}

// GenerateFilename builds the stage-5 output stem (no extension) for
// one chapter, branching on NamingMode.
func GenerateFilename(ch task.ChapterInfo, out task.OutputConfig) string {
	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("segment%d", ch.Index+1)
	}
	cleanTitle := cleanFilenameComponent(title)

	var filename string
	switch out.NamingMode {
	case task.NamingChapterNumberTitle:
		filename = fmt.Sprintf("%02d_%s", ch.Number, cleanTitle)
	case task.NamingNumberTitle:
		filename = fmt.Sprintf("%03d_%s", ch.Index+1, cleanTitle)
	case task.NamingTitleOnly:
		filename = cleanTitle
	case task.NamingNumberOnly:
		filename = fmt.Sprintf("%03d", ch.Index+1)
	case task.NamingOriginalFilename:
		filename = originalFilenameStem(ch)
	case task.NamingCustom:
		filename = applyCustomTemplate(out.CustomTemplate, ch.Number, cleanTitle, ch.Index+1)
	default:
		filename = fmt.Sprintf("%02d_%s", ch.Number, cleanTitle)
	}

	limit := out.NameLengthLimit
	if limit <= 0 {
		limit = 50
	}
	// truncate on a rune boundary so multibyte titles stay valid UTF-8
	if runes := []rune(filename); len(runes) > limit {
		filename = string(runes[:limit])
	}
	if strings.TrimSpace(filename) == "" {
		filename = fmt.Sprintf("segment_%03d", ch.Index+1)
	}
	return filename
}

func originalFilenameStem(ch task.ChapterInfo) string {
	if ch.OriginalFilename != "" {
		base := filepath.Base(ch.OriginalFilename)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		return cleanFilenameComponent(stem)
	}
	title := ch.Title
	if title == "" {
		title = fmt.Sprintf("segment%d", ch.Index+1)
	}
	return cleanFilenameComponent(title)
}

// applyCustomTemplate substitutes the custom_template placeholder set:
// {chapter_num}, {chapter_num:02d}, {chapter_num:03d}, {index},
// {index:02d}, {index:03d}, {title}, {timestamp}, {date}, {time}.
func applyCustomTemplate(tmpl string, chapterNum int, title string, index int) string {
	if tmpl == "" {
		return fmt.Sprintf("%02d_%s", chapterNum, title)
	}

	result := tmpl
	result = strings.ReplaceAll(result, "{chapter_num:02d}", fmt.Sprintf("%02d", chapterNum))
	result = strings.ReplaceAll(result, "{chapter_num:03d}", fmt.Sprintf("%03d", chapterNum))
	result = strings.ReplaceAll(result, "{chapter_num}", fmt.Sprintf("%d", chapterNum))
	result = strings.ReplaceAll(result, "{index:02d}", fmt.Sprintf("%02d", index))
	result = strings.ReplaceAll(result, "{index:03d}", fmt.Sprintf("%03d", index))
	result = strings.ReplaceAll(result, "{index}", fmt.Sprintf("%d", index))
	result = strings.ReplaceAll(result, "{title}", title)
	if strings.Contains(result, "{timestamp}") || strings.Contains(result, "{date}") || strings.Contains(result, "{time}") {
		now := time.Now()
		result = strings.ReplaceAll(result, "{timestamp}", now.Format("20060102_150405"))
		result = strings.ReplaceAll(result, "{date}", now.Format("20060102"))
		result = strings.ReplaceAll(result, "{time}", now.Format("150405"))
	}
	return result
}

// ResolveOutputPath joins stem+extension under outputDir, appending a
// zero-padded counter suffix on collision and bailing out after 999
// attempts rather than looping forever.
func ResolveOutputPath(outputDir, stem, extension string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	full := filepath.Join(outputDir, stem+"."+extension)
	for counter := 1; counter <= 999; counter++ {
		if _, err := os.Stat(full); os.IsNotExist(err) {
			return full, nil
		}
		full = filepath.Join(outputDir, fmt.Sprintf("%s_%02d.%s", stem, counter, extension))
	}
	return full, nil
}
