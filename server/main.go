package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/kardianos/service"

	"github.com/zhaobenny/sleepdash/internal/config"
	"github.com/zhaobenny/sleepdash/server/internal/auth"
)

const version = "0.1.0"

func main() {
	fs := flag.NewFlagSet("sleepdash-server", flag.ExitOnError)
	var (
		cfgPath string
		showVer bool
	)
	fs.StringVar(&cfgPath, "config", "", "Path to config file (default ~/.sleepdash.yaml)")
	fs.BoolVar(&showVer, "version", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sleepdash-server - WHOOP sleep dashboard

Usage: sleepdash-server [command] [options]

Commands:
  run            Fetch sleep data and serve the dashboard (default)
  install        Install as a background service
  start          Start the background service
  stop           Stop the background service
  uninstall      Remove the background service
  status         Show service status
  hash-password  Read a password from stdin and print its bcrypt hash

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  WHOOP_PASSWORD          WHOOP account password (name set by whoop.password_env)
  SLEEPDASH_ACCESS_HASH   bcrypt hash guarding the dashboard (optional)
  PORT, DB_PATH           Override server.port and server.db_path
`)
	}

	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	fs.Parse(args)

	if showVer {
		fmt.Printf("sleepdash-server version %s\n", version)
		return
	}

	if command == "hash-password" {
		runHashPassword()
		return
	}

	svcArgs := []string{"run"}
	if cfgPath != "" {
		svcArgs = append(svcArgs, "--config="+cfgPath)
	}
	svcConfig := &service.Config{
		Name:        "sleepdash",
		DisplayName: "sleepdash Dashboard",
		Description: "Serves the WHOOP sleep analysis dashboard",
		Arguments:   svcArgs,
	}

	prg := &program{cfgPath: cfgPath}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch command {
	case "install":
		if _, err := config.Load(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Println("Service installed and started.")

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}

	case "run":
		if err := s.Run(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		fs.Usage()
		os.Exit(2)
	}
}

func runHashPassword() {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "Error: empty password")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
