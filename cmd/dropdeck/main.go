// dropdeck is an autonomous DJ agent: it plays pre-analysed local tracks on
// virtual decks, decides how to transition at each approaching drop, and
// learns from explicit GOOD/BAD feedback.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/decision"
	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/library"
	"github.com/dropdeck/dropdeck/internal/score"
	"github.com/dropdeck/dropdeck/internal/session"
	"github.com/dropdeck/dropdeck/internal/stream"
	"github.com/dropdeck/dropdeck/internal/window"
)

var version = "dev"

func main() {
	var cfgFile string

	root := &cobra.Command{
		Use:   "dropdeck",
		Short: "Autonomous DJ agent with learned transition preferences",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); DROPDECK_* env vars override")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent and its HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a music directory and report the library",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dir := cfg.MusicDir
			if len(args) == 1 {
				dir = args[0]
			}
			lib := library.NewStore()
			n, err := lib.Scan(dir)
			if err != nil {
				return err
			}
			for _, t := range lib.List() {
				fmt.Printf("%-40s %6.1f BPM  key %-8s drops %v\n", t.Title, t.BPM, t.Key, t.DropTimes)
			}
			fmt.Printf("%d tracks\n", n)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dropdeck version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("dropdeck", version)
		},
	}

	root.AddCommand(serveCmd, scanCmd, versionCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("dropdeck starting up...")

	// Experience store: durable scores seed the in-memory table.
	db, err := score.OpenDB(cfg.DBPath())
	if err != nil {
		return err
	}
	defer db.Close()

	seed, err := db.LoadScores()
	if err != nil {
		return err
	}
	scores := score.NewStore(score.Config{
		Increment: cfg.ScoreIncrement,
		Decay:     cfg.ScoreDecay,
		Neutral:   cfg.ScoreNeutral,
	}, seed)
	scores.SetPersist(db.Upsert)
	log.Printf("Experience store loaded: %d feature keys", len(seed))

	// Library: scan at startup, rescan on demand via the API.
	lib := library.NewStore()
	if err := os.MkdirAll(cfg.MusicDir, 0o755); err != nil {
		return fmt.Errorf("create music dir: %w", err)
	}
	if _, err := lib.Scan(cfg.MusicDir); err != nil {
		log.Printf("Startup scan failed: %v", err)
	}

	// Transport engine and decision path.
	transport := engine.New([]string{"A", "B"}, cfg.BPMTolerance)
	detector := window.NewDetector(window.Config{
		LeadOffset:     cfg.WindowLead,
		DeadlineOffset: cfg.WindowDeadline,
		BPMTolerance:   cfg.BPMTolerance,
		StrictKey:      cfg.StrictKey,
		BassWindow:     cfg.BassWindowS,
	})
	decider := decision.NewEngine(scores, cfg.MinConfidence)
	loop := decision.NewLoop(transport, detector, decider, func(id string) (*library.Track, bool) {
		t, err := lib.Get(id)
		return t, err == nil
	})

	recorder := session.NewRecorder(cfg.RecordDir)
	sessions := session.NewManager(transport, lib, scores, loop, recorder)

	go transport.Run(ctx)
	go loop.Run(ctx)

	// Monitor fan-out: HTTP MP3 + WebRTC Opus.
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, transport.Frames())
	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	mux := newMux(apiDeps{
		cfg:       cfg,
		lib:       lib,
		scores:    scores,
		sessions:  sessions,
		broadcast: broadcaster,
		webrtc:    webrtcHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if sessions.State().Status == "running" {
			if err := sessions.Stop(); err != nil {
				log.Printf("Session stop on shutdown: %v", err)
			}
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("dropdeck live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}
