package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	voicechat "github.com/codewandler/voicechat-go"
	"github.com/codewandler/voicechat-go/audio"
	"github.com/codewandler/voicechat-go/history"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := voicechat.DefaultSettings()
	settings.Connection.APIKey = os.Getenv("OPENAI_API_KEY")

	var (
		debug      = false
		pushToTalk = false
		truncate   = false
		micRate    = 0
		spkRate    = 0
	)

	flag.StringVar(&settings.Chat.Instructions, "instruction", settings.Chat.Instructions, "instructions for the assistant")
	flag.StringVar(&settings.Chat.Voice, "voice", settings.Chat.Voice, "assistant voice")
	flag.BoolVar(&settings.Connection.IsAzure, "azure", false, "use a gateway endpoint")
	flag.StringVar(&settings.Connection.Endpoint, "endpoint", settings.Connection.Endpoint, "gateway endpoint")
	flag.StringVar(&settings.Connection.Deployment, "deployment", settings.Connection.Deployment, "gateway deployment name")
	flag.StringVar(&settings.Connection.APIVersion, "api-version", settings.Connection.APIVersion, "gateway api version")
	flag.StringVar(&settings.Connection.Model, "model", settings.Connection.Model, "model (direct endpoint)")
	flag.BoolVar(&pushToTalk, "push-to-talk", false, "manual turn taking: empty input line toggles the microphone")
	flag.BoolVar(&truncate, "truncate", false, "report playback truncation to the server on interruption")
	flag.IntVar(&micRate, "mic-sample-rate", micRate, "microphone sample rate (0 = session rate)")
	flag.IntVar(&spkRate, "speaker-sample-rate", spkRate, "speaker sample rate (0 = session rate)")
	flag.BoolVar(&debug, "debug", false, "enable debug logs")
	flag.Parse()

	slog.SetLogLoggerLevel(slog.LevelError)
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if settings.Connection.IsAzure {
		if k := os.Getenv("AZURE_OPENAI_KEY"); k != "" {
			settings.Connection.APIKey = k
		}
	}
	if pushToTalk {
		settings.Chat.TurnDetection = nil
	}

	store, err := history.Open(history.DefaultPath(), slog.Default())
	must(err)
	defer store.Close()

	session := voicechat.NewSession(settings, store,
		voicechat.WithCaptureSource(&audio.MicSource{DeviceSampleRate: micRate}),
		voicechat.WithPlaybackSink(&audio.SpeakerSink{DeviceSampleRate: spkRate}),
		voicechat.WithClientOptions(voicechat.WithTruncationFeedback(truncate)),
	)

	must(session.AddTool(weatherTool()))

	if err := session.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}
	fmt.Printf("connected (%s mode), type to chat", session.TurnMode())
	if pushToTalk {
		fmt.Print(", empty line toggles the microphone")
	}
	fmt.Println()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		_ = session.Disconnect(context.Background())
		cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	talking := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && pushToTalk {
			if talking {
				must(session.StopTalking())
				fmt.Println("(mic off)")
			} else {
				must(session.StartTalking())
				fmt.Println("(mic on)")
			}
			talking = !talking
			continue
		}
		if line == "" {
			continue
		}
		if err := session.SendTextMessage(line); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}

	_ = session.Disconnect(context.Background())
}
