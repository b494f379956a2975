// Command interview-agent runs a proctored voice interview from the
// terminal. It connects to the interview service, captures spoken answers
// from the microphone, watches the webcam for attention, and prints the
// final report.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	agent "github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/sdk"

	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/clock"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/core/interview"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/detector"
	"github.com/VishwasKumarKeshari/AI-INTERVIEW-AGENT/pkg/device"
)

const (
	defaultBaseURL     = "http://localhost:8000"
	defaultDetectorURL = "ws://localhost:8765/mesh"
	defaultRoles       = "software_engineer:1.0"
)

type agentConfig struct {
	BaseURL     string
	APIKey      string
	DetectorURL string
	Roles       []interview.Role
	MetricsAddr string
	CameraDev   string
	NoSpeaker   bool
	Debug       bool
}

func parseAgentConfig(args []string, getenv func(string) string) (agentConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := agentConfig{}
	var roles string

	fs := flag.NewFlagSet("interview-agent", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", envOr(getenv, "INTERVIEW_API_URL", defaultBaseURL), "interview service base URL (or INTERVIEW_API_URL)")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("INTERVIEW_API_KEY")), "optional service api key (or INTERVIEW_API_KEY)")
	fs.StringVar(&cfg.DetectorURL, "detector-url", envOr(getenv, "FACEMESH_URL", defaultDetectorURL), "face landmark sidecar websocket URL (or FACEMESH_URL)")
	fs.StringVar(&roles, "roles", defaultRoles, "candidate roles as name:confidence pairs, comma separated")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	fs.StringVar(&cfg.CameraDev, "camera-device", "", "camera device (default /dev/video0 on Linux, 0 on macOS)")
	fs.BoolVar(&cfg.NoSpeaker, "no-speaker", false, "disable spoken question playback")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return agentConfig{}, err
	}

	parsed, err := parseRoles(roles)
	if err != nil {
		return agentConfig{}, err
	}
	cfg.Roles = parsed

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return agentConfig{}, errors.New("base URL must not be empty")
	}
	return cfg, nil
}

func envOr(getenv func(string) string, name, fallback string) string {
	if v := strings.TrimSpace(getenv(name)); v != "" {
		return v
	}
	return fallback
}

// parseRoles parses "name:confidence" pairs, comma separated. Confidence
// defaults to 1.0 when omitted.
func parseRoles(s string) ([]interview.Role, error) {
	var roles []interview.Role
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		confidence := 1.0
		if idx := strings.LastIndex(part, ":"); idx >= 0 {
			name = strings.TrimSpace(part[:idx])
			v, err := strconv.ParseFloat(strings.TrimSpace(part[idx+1:]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid role confidence in %q", part)
			}
			confidence = v
		}
		if name == "" {
			return nil, fmt.Errorf("invalid role %q: name must not be empty", part)
		}
		roles = append(roles, interview.Role{
			Name:       name,
			Confidence: confidence,
			Rationale:  "selected by operator",
		})
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}
	return roles, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseAgentConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interview-agent: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "interview-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg agentConfig, in io.Reader, out, errOut io.Writer) error {
	logger := slog.New(slog.NewTextHandler(errOut, nil))

	clientOpts := []agent.ClientOption{
		agent.WithBaseURL(cfg.BaseURL),
		agent.WithLogger(logger),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, agent.WithAPIKey(cfg.APIKey))
	}
	client := agent.NewClient(clientOpts...)

	mesh := detector.NewFaceMesh(detector.Config{URL: cfg.DetectorURL}, logger)
	defer mesh.Close()

	metrics := interview.NewMetrics("interview_agent")
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				fmt.Fprintf(errOut, "metrics endpoint: %v\n", err)
			}
		}()
	}

	sessionConfig := interview.DefaultConfig()
	sessionConfig.Debug = cfg.Debug

	deps := interview.Deps{
		Service:    client,
		Clock:      clock.NewSystem(),
		Microphone: device.NewMic(device.DefaultMicConfig()),
		Camera:     device.NewCamera(cameraConfig(cfg)),
		Detector:   mesh,
		Metrics:    metrics,
	}
	if !cfg.NoSpeaker {
		speaker, err := device.NewSpeaker(device.NewCommandSynthesizer(), device.DefaultSpeakerConfig())
		if err != nil {
			fmt.Fprintf(errOut, "speaker unavailable, continuing silently: %v\n", err)
		} else {
			deps.Speaker = speaker
			defer speaker.Close()
		}
	}

	sess, err := interview.NewSession(sessionConfig, deps)
	if err != nil {
		return err
	}
	defer sess.Close()

	go renderEvents(ctx, sess, out)

	fmt.Fprintln(out, "Starting interview...")
	if err := sess.Start(ctx, cfg.Roles); err != nil {
		return fmt.Errorf("start interview: %w", err)
	}

	return commandLoop(ctx, sess, in, out, errOut)
}

func cameraConfig(cfg agentConfig) device.CameraConfig {
	camCfg := device.DefaultCameraConfig()
	if cfg.CameraDev != "" {
		camCfg.Device = cfg.CameraDev
	}
	return camCfg
}

const commandHelp = `Commands:
  /stop     stop recording and submit the spoken answer
  /submit   submit the typed answer for a coding question
  /report   fetch and print the interview report
  /export   print the raw answers document
  /end      end the interview and delete the session
  /quit     exit (ends the interview first)
  /help     show this help
Any other input is kept as the typed answer for the current coding question.`

func commandLoop(ctx context.Context, sess *interview.Session, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/help":
			fmt.Fprintln(out, commandHelp)
		case line == "/stop":
			sess.StopAnswer()
		case line == "/submit":
			sess.SubmitCoding()
		case line == "/report":
			printReport(ctx, sess, out, errOut)
		case line == "/export":
			raw, err := sess.ExportAnswers(ctx)
			if err != nil {
				fmt.Fprintf(errOut, "export: %v\n", err)
				continue
			}
			fmt.Fprintln(out, string(raw))
		case line == "/end":
			if err := sess.End(ctx); err != nil {
				fmt.Fprintf(errOut, "end: %v\n", err)
			}
		case line == "/quit":
			_ = sess.End(ctx)
			return nil
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(out, "Unknown command %q. Type /help for commands.\n", line)
		default:
			sess.SetTypedAnswer(line)
			fmt.Fprintln(out, "Typed answer updated. Use /submit to send it.")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printReport(ctx context.Context, sess *interview.Session, out, errOut io.Writer) {
	reportCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	report, err := sess.FetchReport(reportCtx)
	if err != nil {
		fmt.Fprintf(errOut, "report: %v\n", err)
		return
	}
	fmt.Fprintf(out, "\n=== Interview Report (%d questions) ===\n", report.TotalQuestions)
	for _, role := range report.Roles {
		fmt.Fprintf(out, "%s: %.1f/%.1f\n", role.RoleName, role.TotalRawScore, role.MaxPossible)
	}
	fmt.Fprintf(out, "Total: %.1f/%.1f\n", report.TotalRawScore, report.MaxPossible)
	if report.FinalSummary != "" {
		fmt.Fprintf(out, "\n%s\n", report.FinalSummary)
	}
}

func renderEvents(ctx context.Context, sess *interview.Session, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sess.Events():
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev interview.Event) {
	switch e := ev.(type) {
	case *interview.SessionStartedEvent:
		fmt.Fprintf(out, "Session %s started (%d questions).\n", e.SessionID, e.TotalQuestions)
	case *interview.IntroStartedEvent:
		fmt.Fprintf(out, "\n%s\n", e.Text)
	case *interview.QuestionPresentedEvent:
		fmt.Fprintf(out, "\nQuestion %d [%s]: %s\n", e.Index+1, e.Kind, e.Question.Question)
		if e.Kind == interview.KindCoding.String() {
			fmt.Fprintln(out, "Type your solution, then /submit.")
		} else {
			fmt.Fprintln(out, "Recording starts after the prep countdown. /stop submits early.")
		}
	case *interview.CountdownEvent:
		if e.Remaining > 0 && (e.Remaining <= 5 || e.Remaining%30 == 0) {
			fmt.Fprintf(out, "  %ds remaining\n", e.Remaining)
		}
	case *interview.RecordingStartedEvent:
		fmt.Fprintln(out, "Recording. Speak your answer.")
	case *interview.RecordingStoppedEvent:
		fmt.Fprintf(out, "Recording stopped (%s).\n", e.Reason)
	case *interview.AnswerSubmittedEvent:
		fmt.Fprintf(out, "Answer submitted for %s.\n", e.QuestionID)
	case *interview.SubmitFailedEvent:
		fmt.Fprintf(out, "Submit failed for %s: %s (retry with /stop or /submit)\n", e.QuestionID, e.Error)
	case *interview.GazeWarningEvent:
		fmt.Fprintf(out, "ATTENTION WARNING %d/%d: please keep your eyes on the screen.\n", e.Count, e.Max)
	case *interview.LockedOutEvent:
		fmt.Fprintf(out, "\nInterview locked after %d attention warnings.\n", e.Warnings)
	case *interview.SessionCompletedEvent:
		fmt.Fprintln(out, "\nInterview complete. Use /report to see your evaluation.")
	case *interview.SessionEndedEvent:
		fmt.Fprintln(out, "Session ended.")
	case *interview.ErrorEvent:
		fmt.Fprintf(out, "Error: %s\n", e.Message)
	}
}
