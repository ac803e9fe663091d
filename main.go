package main

import (
	"flag"
	"fmt"
	"os"

	"match-call-backend/cmd"
)

const usage = `usage: match-call-backend <command> [flags]

commands:
  serve    run the HTTP/WebSocket server
  worker   run a standalone matching coordinator
  seed     insert fake accounts (-n count)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML config file")
	count := fs.Int("n", 50, "number of accounts to seed")
	seed := fs.Int64("seed", 0, "random seed for repeatable fake data")
	_ = fs.Parse(os.Args[2:])

	switch os.Args[1] {
	case "serve":
		cmd.RunServer(*configPath)
	case "worker":
		cmd.RunWorker(*configPath)
	case "seed":
		cmd.RunSeed(*configPath, *count, *seed)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}
