package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/chat-relay/modules/api"
	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/broadcast"
	"github.com/example/chat-relay/modules/relay"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== Chat Relay ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	authModule := auth.NewModule()
	relayModule := relay.NewModule()
	broadcastModule := broadcast.NewModule()
	apiModule := api.NewModule(authModule, relayModule)

	// Inject the hub into the modules that address connections directly
	// (not exposed via ServiceContainer).
	relayModule.SetGroups(broadcastModule.Hub())
	apiModule.SetHub(broadcastModule.Hub())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - auth: credential store + token service
	// - relay: coordination core (event emitter)
	// - broadcast: event consumer (WebSocket fan-out)
	// - api: driving adapter (Fiber HTTP/WebSocket server)
	app.Register(authModule)
	app.Register(relayModule)
	app.Register(broadcastModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health              - Health check")
	log.Println("  POST   /api/register        - Register a new user")
	log.Println("  POST   /api/login           - Login and get a token")
	log.Println("  GET    /api/users           - List users (Bearer token)")
	log.Println("  POST   /api/upload          - Presigned upload URL (Bearer token)")
	log.Println("  POST   /api/profile/avatar  - Avatar upload URL (Bearer token)")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws?token=<jwt>):", port)
	log.Println("  Events: join room, chat message, user typing start/stop")
	log.Println("  Pushes: connection success, chat history, chat message,")
	log.Println("          update user list")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
