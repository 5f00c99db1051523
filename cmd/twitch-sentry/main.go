package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/user/twitch-sentry/internal/app"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	login := flag.Bool("login", false, "authenticate with Twitch and exit")
	logout := flag.Bool("logout", false, "remove the stored token and exit")
	channels := flag.String("channels", "", "comma-separated channel logins to watch (saved to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New()
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		os.Exit(1)
	}

	if *channels != "" {
		list := strings.Split(*channels, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		if err := application.SetChannels(list); err != nil {
			log.Printf("Failed to save channels: %v", err)
			os.Exit(1)
		}
	}

	switch {
	case *login:
		err = application.Login(ctx)
	case *logout:
		err = application.Logout(ctx)
	default:
		err = application.Run(ctx)
	}
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
