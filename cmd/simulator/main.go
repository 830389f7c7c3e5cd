package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"
	"go.uber.org/zap"
)

var (
	serverURL     = cli.StringP("server", "s", "http://localhost:3000/alexa", "Skill webhook URL")
	apiURL        = cli.String("api", "http://localhost:3000/api/v1", "Admin API base URL, used by the direct command")
	apiKey        = cli.String("api-key", os.Getenv("ADMIN_API_KEY"), "Admin API key")
	applicationID = cli.StringP("app-id", "a", "amzn1.ask.skill.simulator", "Skill application id sent in envelopes")
	locale        = cli.StringP("locale", "l", "es-ES", "Request locale")
	userID        = cli.String("user", "amzn1.ask.account.simulator", "User id sent in envelopes")
	timeout       = cli.Duration("timeout", 10*time.Second, "Per-request timeout")
	verbose       = cli.BoolP("verbose", "v", false, "Enable verbose logging")
)

func main() {
	cli.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sim := NewSimulator(&SimulatorConfig{
		ServerURL:     *serverURL,
		APIURL:        *apiURL,
		APIKey:        *apiKey,
		ApplicationID: *applicationID,
		Locale:        *locale,
		UserID:        *userID,
		Timeout:       *timeout,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		sim.Stop()
		os.Exit(0)
	}()

	// Positional arguments run as a script, one command each.
	if args := cli.Args(); len(args) > 0 {
		for _, line := range args {
			if !sim.Exec(line, os.Stdout) {
				break
			}
		}
		return
	}

	runInteractiveMode(sim)
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nAsistente Gemini - Alexa Simulator")
	fmt.Println("==================================")
	fmt.Printf("Webhook: %s\n", sim.config.ServerURL)
	fmt.Println("Commands:")
	fmt.Println("  launch                  - Open the skill (LaunchRequest)")
	fmt.Println("  ask <text>              - AskAssistant with the question slot")
	fmt.Println("  say <text>              - Free utterance routed to an unmatched intent")
	fmt.Println("  intent <name> [text]    - Send any intent, optionally with the question slot")
	fmt.Println("  on | off                - Activate or deactivate assistant mode")
	fmt.Println("  help | stop | cancel    - Built-in Amazon intents")
	fmt.Println("  end [reason]            - Send SessionEndedRequest")
	fmt.Println("  direct <text>           - Ask Gemini through the admin API")
	fmt.Println("  new                     - Start a fresh session")
	fmt.Println("  session                 - Show the current session state")
	fmt.Println("  quit                    - Exit simulator")
	fmt.Println("")

	sim.RunInteractive(os.Stdin, os.Stdout)
}
