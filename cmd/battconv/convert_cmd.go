package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/battconv/battconv/internal/scheduler"
	"github.com/battconv/battconv/internal/task"
)

var (
	convertEngine  string
	convertVoice   string
	convertLang    string
	convertFormat  string
	convertOutDir  string
	convertSubtitle bool
	convertLoadSession string
	convertSaveSession string
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Synthesize one or more text files to audio",
	Args:  cobra.ArbitraryArgs,
	RunE:  runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertEngine, "engine", "edge_tts", "engine id to use")
	convertCmd.Flags().StringVar(&convertVoice, "voice", "zh-CN-XiaoxiaoNeural", "voice name")
	convertCmd.Flags().StringVar(&convertLang, "language", "zh-CN", "BCP-47-ish language tag")
	convertCmd.Flags().StringVar(&convertFormat, "format", "mp3", "output container format")
	convertCmd.Flags().StringVar(&convertOutDir, "output-dir", "./output", "directory for synthesized audio")
	convertCmd.Flags().BoolVar(&convertSubtitle, "subtitle", false, "generate a subtitle sidecar when the engine supports it")
	convertCmd.Flags().StringVar(&convertLoadSession, "load-session", "", "import a previously exported task list before converting")
	convertCmd.Flags().StringVar(&convertSaveSession, "save-session", "", "export the task list (with results) to this file on exit")
}

func runConvert(cmd *cobra.Command, args []string) error {
	a, err := newApp(configDir)
	if err != nil {
		return err
	}

	loadText := func(path string) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	sched := buildScheduler(a, loadText, a.Config.App().Main.ConcurrentTasks)
	events := sched.Events()

	voice := task.VoiceConfig{
		EngineID: convertEngine, VoiceName: convertVoice, Rate: 1.0, Pitch: 0, Volume: 1.0,
		Language: convertLang, OutputFormat: convertFormat,
	}
	out := task.DefaultOutputConfig(convertOutDir)
	out.Format = convertFormat
	out.GenerateSubtitle = convertSubtitle

	total := 0
	if convertLoadSession != "" {
		data, err := os.ReadFile(convertLoadSession)
		if err != nil {
			return err
		}
		imported, skipped, err := sched.ImportTasks(data, &out)
		if err != nil {
			return err
		}
		fmt.Printf("session: imported %d task(s), skipped %d\n", imported, skipped)
		total += imported
	}

	now := time.Now()
	for i, path := range args {
		base := filepath.Base(path)
		stem := base[:len(base)-len(filepath.Ext(base))]
		// Output paths are left empty: stage 5 derives them from the
		// configured naming mode with collision suffixing.
		chapter := task.ChapterInfo{Number: i + 1, Title: stem, Index: i, OriginalFilename: base}
		sched.AddTask(now.Add(time.Duration(i)*time.Nanosecond), path, "", voice, &out, chapter)
		total++
	}
	if total == 0 {
		return fmt.Errorf("nothing to convert: pass input files or --load-session")
	}

	if err := sched.StartProcessing(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	remaining := total
	for remaining > 0 {
		select {
		case ev := <-events:
			switch ev.Type {
			case scheduler.EventTaskCompleted:
				fmt.Printf("completed: %s -> %s\n", ev.TaskID, ev.Snapshot.OutputPath)
				remaining--
			case scheduler.EventTaskFailed:
				fmt.Printf("failed: %s: %s\n", ev.TaskID, ev.Snapshot.ErrorMessage)
				remaining--
			case scheduler.EventTaskCancelled:
				remaining--
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	sched.StopProcessing()

	if convertSaveSession != "" {
		data, err := sched.ExportTasks(time.Now(), "battconv convert session")
		if err != nil {
			return err
		}
		if err := os.WriteFile(convertSaveSession, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("session: saved task list to %s\n", convertSaveSession)
	}
	return nil
}
